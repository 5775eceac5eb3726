// Package operation 汇总所有图像操作（模特生成、虚拟试穿、换色等），并提供统一的注册入口。
//
// 操作作者需要：
//  1. 在 internal/operation/<name>/ 目录下描述提示词与参数；
//  2. 在 init() 中通过 MustRegister 注册 Definition；
//  3. 在 internal/config/modules.go 中以空白导入的方式启用该包。
//
// 该包只负责"参数 → 提示词"的纯函数部分，缓存、超时与远程调用由 generate 包编排。
package operation
