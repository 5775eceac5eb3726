// Package modelgen 把用户照片转换为电商棚拍风格的全身模特图。
package modelgen

import "github.com/feizhen/virtual-try-on/internal/operation"

// Key 是操作注册键。
const Key = "model_generator"

const prompt = "You are an expert fashion photographer AI. Transform the person in this image into a full-body fashion model photo suitable for an e-commerce website. " +
	"The background must be a clean, neutral studio backdrop (light gray, #f0f0f0). The person should have a neutral, professional model expression. " +
	"Preserve the person's identity, unique features, and body type, but place them in a standard, relaxed standing model pose. The final image must be photorealistic. Return ONLY the final image."

func init() {
	operation.MustRegister(operation.Definition{
		Key:         Key,
		Description: "Turn a user photo into a studio full-body model shot",
		Category:    operation.CategoryModel,
		ImageSlots:  []string{"source"},
		Build: func(operation.Params) (operation.Plan, error) {
			return operation.Plan{Prompt: prompt}, nil
		},
	})
}
