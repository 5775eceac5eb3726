// Package styling 在现有穿搭上补充一件或一组协调的单品。
package styling

import (
	"fmt"
	"strings"

	"github.com/feizhen/virtual-try-on/internal/operation"
)

// Key 是操作注册键。
const Key = "styling_assistant"

const (
	paramCustom = "custom_item"
	paramSmart  = "smart_recommend"

	smartRecommendation = "a suitable accessory or piece of clothing"
)

var items = []operation.Toggle{
	{Param: "coat", Phrase: "a coat or jacket"},
	{Param: "top", Phrase: "a top or shirt"},
	{Param: "bottom", Phrase: "bottoms such as pants or a skirt"},
	{Param: "dress", Phrase: "a dress"},
	{Param: "shoes", Phrase: "a pair of shoes"},
	{Param: "accessories", Phrase: "an accessory such as a handbag, belt, or hat"},
}

const promptTemplate = "You are a top-tier fashion stylist AI. Based on the person and the clothing they are wearing in this image, add a complementary %s to create a complete, stylish, and cohesive outfit.\n\n" +
	"**Crucial Rules:**\n" +
	"1.  **Preserve the Model:** The person's face, hair, body shape, and pose from the original image MUST remain perfectly unchanged.\n" +
	"2.  **Preserve Existing Garments:** All clothing and accessories already present in the image MUST be preserved perfectly.\n" +
	"3.  **Preserve the Background:** The entire background from the original image MUST be preserved perfectly.\n" +
	"4.  **Additive Only:** Your only task is to ADD the new item. Do not remove, replace, or alter any existing element.\n" +
	"5.  **Photorealism:** The final image must be photorealistic, with natural lighting, shadows, and textures consistent with the original scene.\n" +
	"6.  **Output:** Return ONLY the final, edited image. Do not include any text, explanations, or dialogue."

func init() {
	specs := []operation.ParamSpec{
		{Name: paramCustom, Kind: operation.ParamString, Description: "free-form item, overrides the toggles"},
		{Name: paramSmart, Kind: operation.ParamBool, Default: "true", Description: "let the model pick an item when nothing is selected"},
	}
	operation.MustRegister(operation.Definition{
		Key:         Key,
		Description: "Add complementary clothing or accessories to the current outfit",
		Category:    operation.CategoryStyling,
		ImageSlots:  []string{"source"},
		Params:      append(specs, operation.ToggleSpecs(items)...),
		Build:       build,
	})
}

// ItemDescription 按"自定义 > 开关 > 智能推荐"的优先级生成单品描述，
// 返回空字符串表示应原图透传。
func ItemDescription(params operation.Params) (string, error) {
	if custom := params.String(paramCustom); custom != "" {
		return custom, nil
	}

	selected, err := params.Selected(items)
	if err != nil {
		return "", err
	}
	switch len(selected) {
	case 0:
		smart, err := params.Bool(paramSmart, true)
		if err != nil {
			return "", err
		}
		if smart {
			return smartRecommendation, nil
		}
		return "", nil
	case 1:
		return "a complementary " + selected[0], nil
	default:
		last := len(selected) - 1
		list := strings.Join(selected[:last], ", ") + " and " + selected[last]
		return "a complementary set consisting of " + list, nil
	}
}

func build(params operation.Params) (operation.Plan, error) {
	desc, err := ItemDescription(params)
	if err != nil {
		return operation.Plan{}, err
	}
	if desc == "" {
		return operation.Plan{Passthrough: true}, nil
	}
	return operation.Plan{Prompt: fmt.Sprintf(promptTemplate, desc), Summary: desc}, nil
}
