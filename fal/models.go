// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package fal

// AspectFormat names how a model expects its aspect ratio parameter.
type AspectFormat string

const (
	// AspectRatio passes ratios through unchanged ("9:16").
	AspectRatio AspectFormat = "ratio"

	// AspectSnakeCase uses named sizes ("portrait_16_9").
	AspectSnakeCase AspectFormat = "snake_case"

	// AspectDimensions uses pixel dimensions ("1024x1536").
	AspectDimensions AspectFormat = "dimensions"
)

// defaultPrice is charged per image for models missing from the catalog.
const defaultPrice = 0.01

// ModelConfig describes one supported image model.
type ModelConfig struct {
	Name              string
	Price             float64
	Description       string
	AspectFormat      AspectFormat
	AspectParam       string
	UnsupportedParams []string
}

// ModelInfo is the catalog entry shape served by the models API.
type ModelInfo struct {
	ID            string  `json:"id"`
	Name          string  `json:"name"`
	PricePerImage float64 `json:"price_per_image"`
	Description   string  `json:"description"`
}

// modelOrder fixes the catalog listing order.
var modelOrder = []string{
	"fal-ai/flux/schnell",
	"fal-ai/fast-lightning-sdxl",
	"fal-ai/gpt-image-1.5",
	"fal-ai/nano-banana",
}

var models = map[string]ModelConfig{
	"fal-ai/flux/schnell": {
		Name:         "FLUX Schnell",
		Price:        0.003,
		Description:  "Fast, high-quality image generation",
		AspectFormat: AspectSnakeCase,
		AspectParam:  "image_size",
	},
	"fal-ai/fast-lightning-sdxl": {
		Name:         "SDXL Lightning",
		Price:        0.002,
		Description:  "Fast Stable Diffusion XL generation",
		AspectFormat: AspectRatio,
		AspectParam:  "aspect_ratio",
	},
	"fal-ai/gpt-image-1.5": {
		Name:              "GPT Image 1.5",
		Price:             0.02,
		Description:       "OpenAI's native multimodal image generation",
		AspectFormat:      AspectDimensions,
		AspectParam:       "image_size",
		UnsupportedParams: []string{"guidance_scale", "num_inference_steps"},
	},
	"fal-ai/nano-banana": {
		Name:              "Nano Banana",
		Price:             0.003,
		Description:       "Google Gemini image generation",
		AspectFormat:      AspectRatio,
		AspectParam:       "aspect_ratio",
		UnsupportedParams: []string{"guidance_scale", "num_inference_steps"},
	},
}

// aspectConversions maps workflow aspect ratios into each format. Some
// targets only support a few sizes, so nearby ratios collapse into the
// closest supported one.
var aspectConversions = map[AspectFormat]map[string]string{
	AspectRatio: {
		"1:1":  "1:1",
		"4:5":  "4:5",
		"9:16": "9:16",
		"16:9": "16:9",
		"4:3":  "4:3",
		"3:4":  "3:4",
	},
	AspectSnakeCase: {
		"1:1":  "square",
		"4:5":  "portrait_4_3",
		"9:16": "portrait_16_9",
		"16:9": "landscape_16_9",
		"4:3":  "landscape_4_3",
		"3:4":  "portrait_4_3",
	},
	AspectDimensions: {
		"1:1":  "1024x1024",
		"4:5":  "1024x1536",
		"9:16": "1024x1536",
		"16:9": "1536x1024",
		"4:3":  "1536x1024",
		"3:4":  "1024x1536",
	},
}

// ConvertAspectRatio converts a "w:h" ratio into the target format.
// Unknown ratios pass through unchanged.
func ConvertAspectRatio(aspect string, format AspectFormat) string {
	conversions, ok := aspectConversions[format]
	if !ok {
		return aspect
	}
	if converted, ok := conversions[aspect]; ok {
		return converted
	}
	return aspect
}

// NormalizeParams rewrites generic parameters into the shape one model
// accepts: the aspect_ratio key moves under the model's aspect
// parameter in its format, and parameters the model rejects are
// dropped. Unknown models get their parameters back unchanged.
func NormalizeParams(modelID string, params map[string]any) map[string]any {
	config, ok := models[modelID]
	if !ok {
		return params
	}

	result := make(map[string]any, len(params))
	for k, v := range params {
		result[k] = v
	}

	aspect, present := result["aspect_ratio"]
	if present {
		delete(result, "aspect_ratio")
		if s, _ := aspect.(string); s != "" {
			result[config.AspectParam] = ConvertAspectRatio(s, config.AspectFormat)
		}
	}

	for _, key := range config.UnsupportedParams {
		delete(result, key)
	}
	return result
}

// GetModelConfig returns the catalog entry for a model id.
func GetModelConfig(modelID string) (ModelConfig, bool) {
	config, ok := models[modelID]
	return config, ok
}

// AllModels lists the supported models in catalog order for the API.
func AllModels() []ModelInfo {
	out := make([]ModelInfo, 0, len(modelOrder))
	for _, id := range modelOrder {
		config := models[id]
		out = append(out, ModelInfo{
			ID:            id,
			Name:          config.Name,
			PricePerImage: config.Price,
			Description:   config.Description,
		})
	}
	return out
}

// ModelPrice returns the per-image price, defaulting for unknown models.
func ModelPrice(modelID string) float64 {
	if config, ok := models[modelID]; ok {
		return config.Price
	}
	return defaultPrice
}

// SupportsAdvancedParams reports whether the model accepts
// guidance_scale and num_inference_steps.
func SupportsAdvancedParams(modelID string) bool {
	config, ok := models[modelID]
	if !ok {
		return true
	}
	for _, p := range config.UnsupportedParams {
		if p == "guidance_scale" {
			return false
		}
	}
	return true
}
