package gemini

type generateRequest struct {
	Contents           []content        `json:"contents"`
	GenerationConfig   generationConfig `json:"generationConfig"`
	ResponseModalities []string         `json:"responseModalities"`
}

type content struct {
	Role  string        `json:"role,omitempty"`
	Parts []requestPart `json:"parts"`
}

type requestPart struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineBlob `json:"inline_data,omitempty"`
}

type inlineBlob struct {
	MIMEType string `json:"mime_type"`
	Data     string `json:"data"`
}

type generationConfig struct {
	ResponseMIMEType string `json:"response_mime_type"`
	Seed             *int64 `json:"seed,omitempty"`
	RandomSeed       *int64 `json:"random_seed,omitempty"`
}

// 响应同时兼容 snake_case 与 camelCase 两种字段写法。
type generateResponse struct {
	Candidates          []candidate     `json:"candidates"`
	PromptFeedback      *promptFeedback `json:"promptFeedback"`
	PromptFeedbackSnake *promptFeedback `json:"prompt_feedback"`
}

type promptFeedback struct {
	BlockReason      string `json:"blockReason"`
	BlockReasonSnake string `json:"block_reason"`
}

type candidate struct {
	Content      *responseContent `json:"content"`
	FinishReason string           `json:"finishReason"`
}

type responseContent struct {
	Parts []responsePart `json:"parts"`
}

type responsePart struct {
	Text            string        `json:"text"`
	InlineDataSnake *responseBlob `json:"inline_data"`
	InlineDataCamel *responseBlob `json:"inlineData"`
}

type responseBlob struct {
	MIMETypeSnake string `json:"mime_type"`
	MIMETypeCamel string `json:"mimeType"`
	Data          string `json:"data"`
}

type errorEnvelope struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

func (p responsePart) inline() *responseBlob {
	if p.InlineDataSnake != nil {
		return p.InlineDataSnake
	}
	return p.InlineDataCamel
}

func (b *responseBlob) mimeType() string {
	if b.MIMETypeSnake != "" {
		return b.MIMETypeSnake
	}
	return b.MIMETypeCamel
}

func (r generateResponse) blockReason() string {
	for _, fb := range []*promptFeedback{r.PromptFeedback, r.PromptFeedbackSnake} {
		if fb == nil {
			continue
		}
		if fb.BlockReason != "" {
			return fb.BlockReason
		}
		if fb.BlockReasonSnake != "" {
			return fb.BlockReasonSnake
		}
	}
	return ""
}
