package logging

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/feizhen/virtual-try-on/internal/heartbeat"
)

// BaseFields 构建 action + 配置路径等基础字段，便于不同入口复用。
func BaseFields(action, configPath string) logrus.Fields {
	return logrus.Fields{
		"action":     action,
		"configPath": configPath,
	}
}

// OperationFields 提供操作/请求/命中状态字段，供生成请求日志复用。
func OperationFields(operation, requestID string, cacheHit bool) logrus.Fields {
	return logrus.Fields{
		"operation":  operation,
		"request_id": requestID,
		"cache_hit":  cacheHit,
	}
}

// HeartbeatSink 把心跳写成一条 info 日志，携带已等待时长。
func HeartbeatSink(entry *logrus.Entry) heartbeat.Sink {
	if entry == nil {
		return nil
	}
	return func(sig heartbeat.Signal) {
		entry.WithFields(logrus.Fields{
			"action":     "heartbeat",
			"tick":       sig.Tick,
			"elapsed_ms": sig.Elapsed.Milliseconds(),
		}).Infof("still generating, %s elapsed", sig.Elapsed.Round(time.Second))
	}
}
