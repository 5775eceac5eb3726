// Package pose 在保持人物、服装与背景不变的前提下更换拍摄视角与姿势。
package pose

import (
	"fmt"

	"github.com/feizhen/virtual-try-on/internal/operation"
)

// Key 是操作注册键。
const Key = "pose_variation"

const (
	paramPreset = "pose_preset"
	paramCustom = "custom_pose"

	// DefaultPreset 与前端下拉框默认值一致。
	DefaultPreset = "微微转身，3/4 视角"
)

// presets 把中文预设映射为发送给模型的英文描述；未命中的预设原样使用。
var presets = map[string]string{
	"正面视角，双手叉腰": "Full frontal view, hands on hips",
	"微微转身，3/4 视角": "Slightly turned, 3/4 view",
	"侧面轮廓视角":    "Side profile view",
	"腾空跳跃，动作定格": "Jumping in the air, mid-action shot",
	"朝向相机行走":    "Walking towards camera",
	"倚靠墙面":      "Leaning against a wall",
}

func init() {
	operation.MustRegister(operation.Definition{
		Key:         Key,
		Description: "Regenerate the photo from a different pose or perspective",
		Category:    operation.CategoryPose,
		ImageSlots:  []string{"source"},
		Params: []operation.ParamSpec{
			{Name: paramPreset, Kind: operation.ParamString, Default: DefaultPreset, Description: "preset pose label"},
			{Name: paramCustom, Kind: operation.ParamString, Description: "free-form pose, overrides the preset"},
		},
		Build: build,
	})
}

// PoseText 返回最终姿势描述：自定义姿势优先，其次是映射后的预设。
func PoseText(params operation.Params) string {
	if custom := params.String(paramCustom); custom != "" {
		return custom
	}
	preset := params.String(paramPreset)
	if preset == "" {
		preset = DefaultPreset
	}
	if english, ok := presets[preset]; ok {
		return english
	}
	return preset
}

func build(params operation.Params) (operation.Plan, error) {
	poseText := PoseText(params)
	prompt := fmt.Sprintf("You are an expert fashion photographer AI. Take this image and regenerate it from a different perspective. "+
		"The person, clothing, and background style must remain identical. The new perspective should be: %q. "+
		"Return ONLY the final image.", poseText)
	return operation.Plan{Prompt: prompt, Summary: poseText}, nil
}
