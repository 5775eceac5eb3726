// Package tryon 把服装图穿到模特图上。图像顺序固定为 [模特, 服装]。
package tryon

import "github.com/feizhen/virtual-try-on/internal/operation"

// Key 是操作注册键。
const Key = "virtual_tryon"

const prompt = "You are an expert virtual try-on AI. You will be given a 'model image' and a 'garment image'. Your task is to create a new photorealistic image where the person from the 'model image' is wearing the clothing from the 'garment image'.\n\n" +
	"**Crucial Rules:**\n" +
	"1.  **Complete Garment Replacement:** You MUST completely REMOVE and REPLACE the clothing item worn by the person in the 'model image' with the new garment. No part of the original clothing (e.g., collars, sleeves, patterns) should be visible in the final image.\n" +
	"2.  **Preserve the Model:** The person's face, hair, body shape, and pose from the 'model image' MUST remain unchanged.\n" +
	"3.  **Preserve the Background:** The entire background from the 'model image' MUST be preserved perfectly.\n" +
	"4.  **Preserve the Features of 'garment image':** Ensure that the features of 'garment image' MUST be preserved perfectly.\n" +
	"5.  **Apply the Garment:** Realistically fit the new garment onto the person. It should adapt to their pose with natural folds, shadows.\n" +
	"6.  **Output:** Return ONLY the final, edited image. Do not include any text."

func init() {
	operation.MustRegister(operation.Definition{
		Key:         Key,
		Description: "Dress the person from the model image in the garment image",
		Category:    operation.CategoryModel,
		ImageSlots:  []string{"model", "garment"},
		Build: func(operation.Params) (operation.Plan, error) {
			return operation.Plan{Prompt: prompt}, nil
		},
	})
}
