package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/cvtailor/cvtailor/internal/domain"
)

const tailorSystemPrompt = "You are a professional CV tailoring assistant."

// TailorPrompt returns the user prompt sent for one tailoring request
func TailorPrompt(jobDescription, userCV string) string {
	return fmt.Sprintf("Please tailor this CV:\n%s\n\nTo match this job description:\n%s", userCV, jobDescription)
}

// Tailor rewrites userCV to match jobDescription
func Tailor(ctx context.Context, p Provider, jobDescription, userCV string) (string, error) {
	if strings.TrimSpace(jobDescription) == "" {
		return "", domain.ErrValidationField("jobDescription", "job description is required")
	}
	if strings.TrimSpace(userCV) == "" {
		return "", domain.ErrValidationField("userCV", "CV is required")
	}

	var (
		text string
		err  error
	)
	if cached, ok := p.(*CachedProvider); ok {
		text, err = cached.Tailor(ctx, jobDescription, userCV)
	} else {
		text, err = p.Complete(ctx, tailorSystemPrompt, TailorPrompt(jobDescription, userCV))
	}
	if err != nil {
		if domain.GetErrorCode(err) == domain.ErrCodeServiceUnavail {
			return "", err
		}
		return "", domain.ErrTailorFailed(err).WithMetadata("provider", p.Name())
	}
	return text, nil
}
