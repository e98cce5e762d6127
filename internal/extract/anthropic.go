package extract

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"studyplan/internal/domain"
)

const (
	DefaultModel     = "claude-sonnet-4-5"
	DefaultMaxTokens = 4096
	DefaultTimeout   = 90 * time.Second
)

type Config struct {
	APIKey     string
	Model      string
	MaxTokens  int
	Timeout    time.Duration
	BaseURL    string
	MaxRetries int
	Logger     *log.Logger
}

// Anthropic implements Extractor over the Messages API.
type Anthropic struct {
	client    anthropic.Client
	model     string
	maxTokens int64
	logger    *log.Logger
}

func NewAnthropic(cfg Config) (*Anthropic, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("extract.api_key: %w", domain.ErrNotConfigured)
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithRequestTimeout(cfg.Timeout),
		option.WithMaxRetries(cfg.MaxRetries),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &Anthropic{
		client:    anthropic.NewClient(opts...),
		model:     cfg.Model,
		maxTokens: int64(cfg.MaxTokens),
		logger:    cfg.Logger,
	}, nil
}

func (a *Anthropic) ask(ctx context.Context, op, system string, blocks []anthropic.ContentBlockParamUnion) (string, error) {
	msg, err := a.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(a.model),
		MaxTokens: a.maxTokens,
		System:    []anthropic.TextBlockParam{{Text: system}},
		Messages:  []anthropic.MessageParam{anthropic.NewUserMessage(blocks...)},
	})
	if err != nil {
		return "", classify(op, err)
	}
	var b strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	if msg.StopReason == "max_tokens" {
		a.logger.Printf("extract %s: answer truncated at %d tokens", op, a.maxTokens)
	}
	return b.String(), nil
}

// classify maps API failures onto the domain taxonomy; auth failures mean the
// key is wrong and retrying will not help.
func classify(op string, err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case http.StatusUnauthorized, http.StatusForbidden:
			return fmt.Errorf("%s: %w: %v", op, domain.ErrNotConfigured, err)
		case http.StatusBadRequest:
			return domain.Invalid("input", apiErr.Error())
		}
	}
	return domain.Transient(op, err)
}

func fileBlocks(files []File) ([]anthropic.ContentBlockParamUnion, error) {
	blocks := make([]anthropic.ContentBlockParamUnion, 0, len(files))
	for _, f := range files {
		if err := f.validate(); err != nil {
			return nil, err
		}
		data := base64.StdEncoding.EncodeToString(f.Data)
		if f.IsPDF() {
			blocks = append(blocks, anthropic.NewDocumentBlock(anthropic.Base64PDFSourceParam{Data: data}))
			continue
		}
		blocks = append(blocks, anthropic.NewImageBlockBase64(f.MediaType, data))
	}
	return blocks, nil
}

func (a *Anthropic) AnalyzeSyllabus(ctx context.Context, in SyllabusInput) ([]domain.SuggestedTask, error) {
	text := strings.TrimSpace(in.Text)
	if text == "" && len(in.Files) == 0 {
		return nil, domain.Invalid("syllabus", "text or at least one file is required")
	}
	blocks, err := fileBlocks(in.Files)
	if err != nil {
		return nil, err
	}
	if text != "" {
		blocks = append(blocks, anthropic.NewTextBlock("Syllabus:\n"+text))
	} else {
		blocks = append(blocks, anthropic.NewTextBlock("The syllabus is in the attached files."))
	}
	reply, err := a.ask(ctx, "analyze syllabus", syllabusSystem, blocks)
	if err != nil {
		return nil, err
	}
	var ans syllabusAnswer
	if err := decodeAnswer(reply, &ans); err != nil {
		return nil, domain.Transient("analyze syllabus", err)
	}
	return keepValidTasks(ans), nil
}

func (a *Anthropic) AnalyzeDatesheet(ctx context.Context, files []File, today time.Time) ([]domain.TestDraft, error) {
	if len(files) == 0 {
		return nil, domain.Invalid("files", "at least one datesheet file is required")
	}
	blocks, err := fileBlocks(files)
	if err != nil {
		return nil, err
	}
	blocks = append(blocks, anthropic.NewTextBlock("Extract the tests from these datesheet pages."))
	reply, err := a.ask(ctx, "analyze datesheet", datesheetSystem(today), blocks)
	if err != nil {
		return nil, err
	}
	var ans datesheetAnswer
	if err := decodeAnswer(reply, &ans); err != nil {
		return nil, domain.Transient("analyze datesheet", err)
	}
	return keepValidTests(ans), nil
}

func (a *Anthropic) SuggestTopics(ctx context.Context, subject string, syllabusTopics []string) ([]string, error) {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return nil, domain.Invalid("subject", "is required")
	}
	if len(syllabusTopics) == 0 {
		return []string{}, nil
	}
	reply, err := a.ask(ctx, "suggest topics", topicsSystem, []anthropic.ContentBlockParamUnion{
		anthropic.NewTextBlock(topicsPrompt(subject, syllabusTopics)),
	})
	if err != nil {
		return nil, err
	}
	var ans topicsAnswer
	if err := decodeAnswer(reply, &ans); err != nil {
		return nil, domain.Transient("suggest topics", err)
	}
	return keepKnownTopics(ans, syllabusTopics), nil
}

// Unconfigured is used when no API key is set; every call reports ErrNotConfigured.
type Unconfigured struct{}

func (Unconfigured) AnalyzeSyllabus(context.Context, SyllabusInput) ([]domain.SuggestedTask, error) {
	return nil, fmt.Errorf("extract.api_key: %w", domain.ErrNotConfigured)
}

func (Unconfigured) AnalyzeDatesheet(context.Context, []File, time.Time) ([]domain.TestDraft, error) {
	return nil, fmt.Errorf("extract.api_key: %w", domain.ErrNotConfigured)
}

func (Unconfigured) SuggestTopics(context.Context, string, []string) ([]string, error) {
	return nil, fmt.Errorf("extract.api_key: %w", domain.ErrNotConfigured)
}
