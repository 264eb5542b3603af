package dispatch

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/harunnryd/copydesk/internal/content"
	copyErrors "github.com/harunnryd/copydesk/internal/errors"
)

// Field priority lists. Some backends fill several of these; the first
// non-empty value is the one we trust, so order matters.
var (
	textFields         = []string{"content", "text", "message", "data.content", "result"}
	variantFields      = []string{"variants", "content", "platforms"}
	imageFields        = []string{"images[0].url", "images[0]", "imageUrl", "url"}
	videoFields        = []string{"videos[0].url", "videos[0]", "videoUrl", "url"}
	presentationFields = []string{"gammaUrl", "url", "exportUrl"}
	fallbackFields     = []string{"fallback.content", "fallbackContent", "brief", "content", "text", "message"}
	jobIDFields        = []string{"jobId", "job_id", "generationId", "operationName"}
	captionFields      = []string{"message", "caption"}
	errorFields        = []string{"error.message", "error", "message"}
)

const (
	imageFallbackCaveat   = "Image rendering is unavailable right now, so here is a creative brief you can hand to a designer instead."
	genericFallbackCaveat = "The primary generator could not finish, so this is a text fallback."
)

// Normalize turns a raw backend response into a Result. It never calls out.
func Normalize(tag content.Tag, capability content.Capability, prompt string, resp Response) Result {
	directive := firstString(resp, "mode")

	if isFallback(resp) {
		text := firstString(resp, fallbackFields...)
		if text == "" {
			return failure(capability, copyErrors.Backend("fallback response carried no content"))
		}
		item := content.NewItem(tag, content.Payload{Text: text}, prompt)
		item.Fallback = true
		caveat := genericFallbackCaveat
		if capability == content.CapabilityImage {
			caveat = imageFallbackCaveat
		}
		return Result{Kind: KindSync, Capability: capability, Item: &item, Caveat: caveat, Directive: directive}
	}

	if success, ok := resp["success"].(bool); ok && !success {
		msg := firstString(resp, errorFields...)
		if msg == "" {
			msg = "backend reported failure"
		}
		return failure(capability, copyErrors.Backend(msg))
	}

	if payload, ok := extractArtifact(capability, resp); ok {
		item := content.NewItem(tag, payload, prompt)
		res := Result{Kind: KindSync, Capability: capability, Item: &item, Directive: directive}
		if payload.Media != nil {
			res.Message = firstString(resp, captionFields...)
		}
		return res
	}

	if AsyncCapable(capability) {
		if jobID := firstString(resp, jobIDFields...); jobID != "" {
			return Result{
				Kind:       KindAsyncStarted,
				Capability: capability,
				JobID:      jobID,
				Message:    firstString(resp, captionFields...),
				Directive:  directive,
			}
		}
	}

	return failure(capability, copyErrors.Backend(fmt.Sprintf("%s backend returned no usable content", capability)))
}

func extractArtifact(capability content.Capability, resp Response) (content.Payload, bool) {
	switch capability {
	case content.CapabilityImage:
		return mediaPayload(resp, content.MediaImage, imageFields)
	case content.CapabilityVideo:
		return mediaPayload(resp, content.MediaVideo, videoFields)
	case content.CapabilityPresentation:
		return mediaPayload(resp, content.MediaPresentation, presentationFields)
	case content.CapabilityCampaign:
		for _, field := range variantFields {
			if variants := stringMap(lookup(resp, field)); len(variants) > 0 {
				return content.Payload{Variants: variants}, true
			}
		}
	}
	if text := firstString(resp, textFields...); text != "" {
		return content.Payload{Text: text}, true
	}
	return content.Payload{}, false
}

func mediaPayload(resp Response, kind content.MediaKind, fields []string) (content.Payload, bool) {
	if url := firstString(resp, fields...); url != "" {
		return content.Payload{Media: &content.Media{URL: url, Kind: kind}}, true
	}
	return content.Payload{}, false
}

func isFallback(resp Response) bool {
	switch v := resp["fallback"].(type) {
	case bool:
		return v
	case map[string]any:
		return true
	}
	return false
}

func failure(capability content.Capability, err error) Result {
	return Result{Kind: KindFailure, Capability: capability, Err: err}
}

// firstString walks fields in order and returns the first non-blank string.
func firstString(resp Response, fields ...string) string {
	for _, field := range fields {
		if s, ok := lookup(resp, field).(string); ok && strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s)
		}
	}
	return ""
}

// lookup resolves dotted paths with optional [n] indexes, e.g. "images[0].url".
func lookup(resp Response, path string) any {
	var cur any = map[string]any(resp)
	for _, segment := range strings.Split(path, ".") {
		name, index, hasIndex := splitIndex(segment)
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur, ok = obj[name]
		if !ok {
			return nil
		}
		if hasIndex {
			arr, ok := cur.([]any)
			if !ok || index < 0 || index >= len(arr) {
				return nil
			}
			cur = arr[index]
		}
	}
	return cur
}

func splitIndex(segment string) (string, int, bool) {
	open := strings.IndexByte(segment, '[')
	if open < 0 || !strings.HasSuffix(segment, "]") {
		return segment, 0, false
	}
	n, err := strconv.Atoi(segment[open+1 : len(segment)-1])
	if err != nil {
		return segment, 0, false
	}
	return segment[:open], n, true
}

func stringMap(v any) map[string]string {
	obj, ok := v.(map[string]any)
	if !ok {
		return nil
	}
	out := make(map[string]string, len(obj))
	for k, raw := range obj {
		if s, ok := raw.(string); ok && strings.TrimSpace(s) != "" {
			out[k] = s
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
