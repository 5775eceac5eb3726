// Package occasion 按场合为模特生成一整套新穿搭。
package occasion

import (
	"fmt"
	"strings"

	"github.com/feizhen/virtual-try-on/internal/operation"
)

// Key 是操作注册键。
const Key = "occasion_stylist"

const paramCustom = "custom_occasion"

var occasions = []operation.Toggle{
	{Param: "business_casual", Phrase: "business casual"},
	{Param: "gala_dinner", Phrase: "gala dinner"},
	{Param: "weekend_brunch", Phrase: "casual weekend brunch"},
	{Param: "beach_vacation", Phrase: "relaxing beach vacation"},
	{Param: "gym", Phrase: "gym/fitness session"},
	{Param: "cocktail_party", Phrase: "cocktail party"},
}

const promptTemplate = "You are a top-tier fashion stylist AI. Take the person from this 'model image' and dress them in a complete, stylish, and cohesive outfit suitable for a '%s'.\n\n" +
	"**Crucial Rules:**\n" +
	"1.  **Preserve the Model's Identity:** The person's face, hair, body shape, and unique features from the original image MUST remain perfectly unchanged.\n" +
	"2.  **Preserve Pose and Background:** The person's pose and the entire background from the original image MUST be preserved perfectly.\n" +
	"3.  **Complete Outfit Generation:** Your task is to generate a new, full outfit from head to toe (as appropriate for the frame). You must completely replace any existing clothing on the model.\n" +
	"4.  **Photorealism:** The final image must be photorealistic, with natural lighting, shadows, and textures consistent with the original scene.\n" +
	"5.  **Output:** Return ONLY the final, edited image. Do not include any text, explanations, or dialogue."

func init() {
	specs := []operation.ParamSpec{
		{Name: paramCustom, Kind: operation.ParamString, Description: "free-form occasion, overrides the toggles"},
	}
	operation.MustRegister(operation.Definition{
		Key:         Key,
		Description: "Dress the model in a complete outfit for an occasion",
		Category:    operation.CategoryStyling,
		ImageSlots:  []string{"model"},
		Params:      append(specs, operation.ToggleSpecs(occasions)...),
		Build:       build,
	})
}

// Occasion 返回最终场合描述，空字符串表示应原图透传。
func Occasion(params operation.Params) (string, error) {
	if custom := params.String(paramCustom); custom != "" {
		return custom, nil
	}
	selected, err := params.Selected(occasions)
	if err != nil {
		return "", err
	}
	switch len(selected) {
	case 0:
		return "", nil
	case 1:
		return selected[0], nil
	default:
		return "one of the following occasions: " + strings.Join(selected, ", "), nil
	}
}

func build(params operation.Params) (operation.Plan, error) {
	occasion, err := Occasion(params)
	if err != nil {
		return operation.Plan{}, err
	}
	if occasion == "" {
		return operation.Plan{Passthrough: true}, nil
	}
	return operation.Plan{Prompt: fmt.Sprintf(promptTemplate, occasion), Summary: occasion}, nil
}
