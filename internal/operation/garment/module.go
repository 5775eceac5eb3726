// Package garment 把街拍或复杂背景中的服装提取为白底平铺商品图。
package garment

import (
	"strings"

	"github.com/feizhen/virtual-try-on/internal/operation"
)

// Key 是操作注册键。
const Key = "garment_processor"

const basePrompt = "You are an expert e-commerce product photographer AI. Your task is to take the clothing item(s) from the provided image and create a professional 'product flat lay' photo.\n\n" +
	"**Crucial Rules:**\n" +
	"1.  **Isolate the Garment:** Identify and isolate the specified clothing categories in the image.\n" +
	"2.  **Remove Background & Person:** Completely remove the original background, any person wearing the garment, and any other distracting elements.\n" +
	"3.  **Create a Clean Backdrop:** Place the isolated garment(s) on a clean, neutral, perfectly white background (#ffffff).\n" +
	"4.  **Standardize Presentation:** Present each garment as if it were neatly laid out flat for a product catalog. Remove any wrinkles and smooth out the fabric.\n" +
	"5.  **Reconstruct Missing Parts:** If parts of any garment are obscured (e.g., by arms, hair, or complex folds), realistically reconstruct the full, complete garment.\n" +
	"6.  **Professional Lighting:** Ensure even, studio lighting with no harsh shadows.\n" +
	"7.  **Output:** Return ONLY the final, edited image on the white background. Do not include any text.\n\n"

var categories = []operation.Toggle{
	{Param: "tops", Phrase: "tops", Default: true},
	{Param: "bottoms", Phrase: "bottoms"},
	{Param: "shoes", Phrase: "shoes"},
}

func init() {
	operation.MustRegister(operation.Definition{
		Key:         Key,
		Description: "Extract garments onto a clean white flat-lay backdrop",
		Category:    operation.CategoryGarment,
		ImageSlots:  []string{"source"},
		Params:      operation.ToggleSpecs(categories),
		Build:       build,
	})
}

func build(params operation.Params) (operation.Plan, error) {
	selected, err := params.Selected(categories)
	if err != nil {
		return operation.Plan{}, err
	}
	if len(selected) == 0 {
		return operation.Plan{}, operation.NewParamError("tops/bottoms/shoes", "select at least one category")
	}

	categoriesText := strings.Join(selected, ", ")
	prompt := basePrompt + "Extract and present ONLY these categories: " + categoriesText + ". If a category is not present, leave it out."
	return operation.Plan{Prompt: prompt, Summary: categoriesText}, nil
}
