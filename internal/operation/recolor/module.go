// Package recolor 精准修改指定服装或头发的颜色，其余像素保持不变。
package recolor

import (
	"fmt"
	"strings"

	"github.com/feizhen/virtual-try-on/internal/operation"
)

// Key 是操作注册键。
const Key = "advanced_recolor"

const (
	paramColor  = "color"
	paramTarget = "custom_target"
)

var targets = []operation.Toggle{
	{Param: "coat", Phrase: "the coat/jacket"},
	{Param: "top", Phrase: "the top/shirt", Default: true},
	{Param: "bottom", Phrase: "the bottom/pants"},
	{Param: "dress", Phrase: "the dress"},
	{Param: "shoes", Phrase: "the shoes"},
	{Param: "accessories", Phrase: "the accessories"},
	{Param: "hair", Phrase: "the hair"},
}

const promptTemplate = "You are a hyper-precise, professional-grade photo editing AI assistant. Your ONLY task is to perform a highly accurate color change operation on the provided image based on the user's request.\n\n" +
	"**CRUCIAL INSTRUCTIONS - FOLLOW THESE EXACTLY:**\n" +
	"1.  **IDENTIFY TARGET:** Your primary task is to precisely identify ONLY the following object(s) in the image: '%s'.\n" +
	"2.  **APPLY NEW COLOR:** Change the color of the identified target(s) to be exactly this: '%s'. Interpret this color description accurately, whether it's a simple color name, a HEX code, or a descriptive phrase.\n" +
	"3.  **PRESERVE EVERYTHING ELSE:** This is the most important rule. The texture, material, fabric folds, shadows, highlights, and all other elements of the image (including the person's skin tone, the background, and any other clothing items not listed in the target) MUST remain absolutely identical and unchanged.\n" +
	"4.  **NO OTHER ALTERATIONS:** Do not add, remove, or alter anything else in the image. Do not change the composition or style.\n" +
	"5.  **OUTPUT:** Return ONLY the final, edited image. Do not include any text, dialogue, or explanations in your response."

func init() {
	specs := []operation.ParamSpec{
		{Name: paramColor, Kind: operation.ParamString, Description: "color name, HEX code or description"},
		{Name: paramTarget, Kind: operation.ParamString, Description: "free-form target, disables the toggles"},
	}
	operation.MustRegister(operation.Definition{
		Key:         Key,
		Description: "Recolor selected garments or hair while preserving everything else",
		Category:    operation.CategoryColor,
		ImageSlots:  []string{"source"},
		Params:      append(specs, operation.ToggleSpecs(targets)...),
		Build:       build,
	})
}

func build(params operation.Params) (operation.Plan, error) {
	var selected []string
	if custom := params.String(paramTarget); custom != "" {
		selected = []string{custom}
	} else {
		var err error
		selected, err = params.Selected(targets)
		if err != nil {
			return operation.Plan{}, err
		}
	}

	color := params.String(paramColor)
	// 没有目标或颜色时原图返回，不调用远程接口。
	if len(selected) == 0 || color == "" {
		return operation.Plan{Passthrough: true}, nil
	}

	targetText := strings.Join(selected, " and ")
	return operation.Plan{
		Prompt:  fmt.Sprintf(promptTemplate, targetText, color),
		Summary: targetText + ":" + color,
	}, nil
}
