// Package vertex generates images (Imagen) and videos (Veo) through the
// Google Gen AI SDK.
package vertex

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"strings"

	"github.com/harunnryd/copydesk/internal/config"
	"github.com/harunnryd/copydesk/internal/content"
	"github.com/harunnryd/copydesk/internal/dispatch"
	copyErrors "github.com/harunnryd/copydesk/internal/errors"
	"github.com/harunnryd/copydesk/internal/poller"
	"google.golang.org/genai"
)

type modelsAPI interface {
	GenerateImages(ctx context.Context, model string, prompt string, cfg *genai.GenerateImagesConfig) (*genai.GenerateImagesResponse, error)
	GenerateVideos(ctx context.Context, model string, prompt string, image *genai.Image, cfg *genai.GenerateVideosConfig) (*genai.GenerateVideosOperation, error)
}

type operationsAPI interface {
	GetVideosOperation(ctx context.Context, op *genai.GenerateVideosOperation, cfg *genai.GetOperationConfig) (*genai.GenerateVideosOperation, error)
}

// Backend serves the image and video capabilities. Video generation is a
// long-running operation whose name doubles as the job id.
type Backend struct {
	models     modelsAPI
	operations operationsAPI
	imageModel string
	videoModel string
}

func New(ctx context.Context, cfg config.VertexConfig) (*Backend, error) {
	cc := &genai.ClientConfig{Backend: genai.BackendVertexAI, Project: cfg.Project, Location: cfg.Location}
	if cfg.Project == "" {
		if cfg.APIKey == "" {
			return nil, copyErrors.InvalidInput("backends.vertex needs a project or an api_key")
		}
		cc = &genai.ClientConfig{Backend: genai.BackendGeminiAPI, APIKey: cfg.APIKey}
	}

	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, copyErrors.WrapWithCategory(err, "create genai client", copyErrors.ErrInternal)
	}
	return newBackend(client.Models, client.Operations, cfg), nil
}

func newBackend(models modelsAPI, ops operationsAPI, cfg config.VertexConfig) *Backend {
	b := &Backend{
		models:     models,
		operations: ops,
		imageModel: cfg.ImageModel,
		videoModel: cfg.VideoModel,
	}
	if b.imageModel == "" {
		b.imageModel = config.DefaultVertexImageModel
	}
	if b.videoModel == "" {
		b.videoModel = config.DefaultVertexVideoModel
	}
	return b
}

func (b *Backend) Generate(ctx context.Context, req dispatch.Request) (dispatch.Response, error) {
	switch req.Capability {
	case content.CapabilityImage:
		return b.generateImage(ctx, req.Prompt)
	case content.CapabilityVideo:
		return b.generateVideo(ctx, req.Prompt)
	default:
		return nil, copyErrors.InvalidInput(fmt.Sprintf("vertex backend cannot serve %s", req.Capability))
	}
}

func (b *Backend) generateImage(ctx context.Context, prompt string) (dispatch.Response, error) {
	resp, err := b.models.GenerateImages(ctx, b.imageModel, prompt, nil)
	if err != nil {
		return nil, copyErrors.WrapWithCategory(err, "imagen request failed", copyErrors.ErrBackend)
	}

	var images []any
	var filtered string
	for _, gen := range resp.GeneratedImages {
		if gen == nil {
			continue
		}
		if url := imageURL(gen.Image); url != "" {
			images = append(images, map[string]any{"url": url})
			continue
		}
		if gen.RAIFilteredReason != "" {
			filtered = gen.RAIFilteredReason
		}
	}

	if len(images) == 0 {
		reason := "no image returned"
		if filtered != "" {
			reason = "image blocked: " + filtered
		}
		return dispatch.Response{"success": false, "error": reason}, nil
	}
	return dispatch.Response{"success": true, "images": images}, nil
}

func (b *Backend) generateVideo(ctx context.Context, prompt string) (dispatch.Response, error) {
	op, err := b.models.GenerateVideos(ctx, b.videoModel, prompt, nil, nil)
	if err != nil {
		return nil, copyErrors.WrapWithCategory(err, "veo request failed", copyErrors.ErrBackend)
	}
	if op.Done {
		if url := videoURL(op); url != "" {
			return dispatch.Response{"success": true, "videos": []any{map[string]any{"url": url}}}, nil
		}
	}
	slog.Info("Video generation started", "operation", op.Name)
	return dispatch.Response{"success": true, "operationName": op.Name}, nil
}

// Status implements poller.StatusSource for video operations.
func (b *Backend) Status(ctx context.Context, jobID string) (poller.JobStatus, error) {
	op, err := b.operations.GetVideosOperation(ctx, &genai.GenerateVideosOperation{Name: jobID}, nil)
	if err != nil {
		return poller.JobStatus{}, copyErrors.WrapWithCategory(err, "get video operation", copyErrors.ErrTransient)
	}
	if !op.Done {
		return poller.JobStatus{State: poller.StatePending}, nil
	}
	if len(op.Error) > 0 {
		msg, _ := op.Error["message"].(string)
		if msg == "" {
			msg = fmt.Sprintf("%v", op.Error)
		}
		return poller.JobStatus{State: poller.StateFailed, Error: msg}, nil
	}
	url := videoURL(op)
	if url == "" {
		return poller.JobStatus{State: poller.StateFailed, Error: "operation finished without a video"}, nil
	}
	return poller.JobStatus{State: poller.StateCompleted, ArtifactURL: url}, nil
}

func imageURL(img *genai.Image) string {
	if img == nil {
		return ""
	}
	if strings.TrimSpace(img.GCSURI) != "" {
		return img.GCSURI
	}
	if len(img.ImageBytes) == 0 {
		return ""
	}
	mime := img.MIMEType
	if mime == "" {
		mime = "image/png"
	}
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(img.ImageBytes)
}

func videoURL(op *genai.GenerateVideosOperation) string {
	if op == nil || op.Response == nil {
		return ""
	}
	for _, v := range op.Response.GeneratedVideos {
		if v != nil && v.Video != nil && v.Video.URI != "" {
			return v.Video.URI
		}
	}
	return ""
}
