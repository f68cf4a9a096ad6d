package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPromptRequest_Validate(t *testing.T) {
	tests := []struct {
		name     string
		req      PromptRequest
		wantCode ErrorCode
	}{
		{
			name:     "空 prompt",
			req:      PromptRequest{LazyPrompt: ""},
			wantCode: ErrInvalidRequest,
		},
		{
			name:     "仅空白字符",
			req:      PromptRequest{LazyPrompt: "   \t\n "},
			wantCode: ErrInvalidRequest,
		},
		{
			name:     "非法 domain",
			req:      PromptRequest{LazyPrompt: "what is terraform", Domain: "cooking"},
			wantCode: ErrInvalidRequest,
		},
		{
			name:     "非法 expertise_level",
			req:      PromptRequest{LazyPrompt: "what is terraform", ExpertiseLevel: "guru"},
			wantCode: ErrInvalidRequest,
		},
		{
			name:     "非法 output_format",
			req:      PromptRequest{LazyPrompt: "what is terraform", OutputFormat: "haiku"},
			wantCode: ErrInvalidRequest,
		},
		{
			name: "合法完整请求",
			req: PromptRequest{
				LazyPrompt:     "what is terraform",
				Domain:         DomainInfrastructure,
				ExpertiseLevel: ExpertiseExpert,
				OutputFormat:   FormatTutorial,
			},
		},
		{
			name: "仅必填字段",
			req:  PromptRequest{LazyPrompt: "what is terraform"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if tt.wantCode == "" {
				assert.Nil(t, err)
				return
			}
			require.NotNil(t, err)
			assert.Equal(t, tt.wantCode, err.Code)
			assert.Equal(t, 400, err.HTTPStatus)
		})
	}
}

func TestPromptRequest_Normalize(t *testing.T) {
	req := PromptRequest{LazyPrompt: "what is terraform"}
	norm := req.Normalize()

	assert.Equal(t, DomainGeneral, norm.Domain)
	assert.Equal(t, ExpertiseIntermediate, norm.ExpertiseLevel)
	assert.Equal(t, FormatDetailed, norm.OutputFormat)
	require.NotNil(t, norm.IncludeBestPractices)
	require.NotNil(t, norm.IncludeExamples)
	assert.True(t, *norm.IncludeBestPractices)
	assert.True(t, *norm.IncludeExamples)

	// 已设置的字段不被覆盖
	f := false
	req = PromptRequest{
		LazyPrompt:           "x",
		Domain:               DomainSecurity,
		IncludeBestPractices: &f,
	}
	norm = req.Normalize()
	assert.Equal(t, DomainSecurity, norm.Domain)
	assert.False(t, *norm.IncludeBestPractices)
}

func TestPromptRequest_FlagDefaults(t *testing.T) {
	req := PromptRequest{LazyPrompt: "x"}
	assert.True(t, req.BestPractices())
	assert.True(t, req.Examples())

	f := false
	req.IncludeBestPractices = &f
	req.IncludeExamples = &f
	assert.False(t, req.BestPractices())
	assert.False(t, req.Examples())
}
