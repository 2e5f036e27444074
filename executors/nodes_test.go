// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package executors

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/AleutianAI/AdForge/storage"
)

type fakeOptimizer struct {
	result string
	err    error
	called bool
}

func (f *fakeOptimizer) Optimize(_ context.Context, prompt string) (string, error) {
	f.called = true
	if f.err != nil {
		return "", f.err
	}
	if f.result == "" {
		return prompt, nil
	}
	return f.result, nil
}

type fakeTrendSource struct {
	result map[string]any
	err    error

	subreddit string
	sort      string
	limit     int
}

func (f *fakeTrendSource) FetchTrends(_ context.Context, subreddit, sort string, limit int) (map[string]any, error) {
	f.subreddit, f.sort, f.limit = subreddit, sort, limit
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

type fakeGenerator struct {
	result map[string]any
	err    error

	modelID   string
	prompt    string
	numImages int
	params    map[string]any
}

func (f *fakeGenerator) Generate(_ context.Context, modelID, prompt string, numImages int, parameters map[string]any) (map[string]any, error) {
	f.modelID, f.prompt, f.numImages, f.params = modelID, prompt, numImages, parameters
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

type fakeGenerationStore struct {
	created []*storage.Generation
	err     error
}

func (f *fakeGenerationStore) CreateGeneration(_ context.Context, gen *storage.Generation) error {
	if f.err != nil {
		return f.err
	}
	f.created = append(f.created, gen)
	return nil
}

func TestTextInputExecutor(t *testing.T) {
	e := &TextInputExecutor{}

	t.Run("emits configured value", func(t *testing.T) {
		out, err := e.Execute(context.Background(), nil, map[string]any{"value": "espresso"}, nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if out["text"] != "espresso" {
			t.Errorf("got %v", out["text"])
		}
	})

	t.Run("missing value renders empty", func(t *testing.T) {
		out, _ := e.Execute(context.Background(), nil, map[string]any{}, nil)
		if out["text"] != "" {
			t.Errorf("got %v", out["text"])
		}
	})

	t.Run("validate config", func(t *testing.T) {
		if !e.ValidateConfig(map[string]any{"value": ""}) {
			t.Error("value key should validate")
		}
		if e.ValidateConfig(map[string]any{}) {
			t.Error("missing value should not validate")
		}
	})
}

func TestImageInputExecutor(t *testing.T) {
	e := &ImageInputExecutor{}

	out, err := e.Execute(context.Background(), nil, map[string]any{"image_url": "https://img/x.png"}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out["image_url"] != "https://img/x.png" {
		t.Errorf("got %v", out["image_url"])
	}

	if !e.ValidateConfig(map[string]any{"image_url": "u"}) || e.ValidateConfig(map[string]any{}) {
		t.Error("validate should require image_url")
	}
}

func TestPromptExecutor_Template(t *testing.T) {
	e := NewPromptExecutor(nil)

	t.Run("substitutes variables", func(t *testing.T) {
		inputs := map[string]map[string]any{
			"text-1": {"text": "espresso machine"},
		}
		out, err := e.Execute(context.Background(), inputs,
			map[string]any{"template": "product shot of {{text}}"}, nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if out["prompt"] != "product shot of espresso machine" {
			t.Errorf("got %v", out["prompt"])
		}
	})

	t.Run("missing variable renders empty", func(t *testing.T) {
		out, _ := e.Execute(context.Background(), nil,
			map[string]any{"template": "a {{missing}} photo"}, nil)
		if out["prompt"] != "a  photo" {
			t.Errorf("got %q", out["prompt"])
		}
	})

	t.Run("list values join with commas", func(t *testing.T) {
		inputs := map[string]map[string]any{
			"social-1": {"trends": []any{"minimal", "retro"}},
		}
		out, _ := e.Execute(context.Background(), inputs,
			map[string]any{"template": "ad in {{trends}} style"}, nil)
		if out["prompt"] != "ad in minimal, retro style" {
			t.Errorf("got %v", out["prompt"])
		}
	})

	t.Run("image_url passes through", func(t *testing.T) {
		inputs := map[string]map[string]any{
			"img-1": {"image_url": "https://img/base.png"},
		}
		out, _ := e.Execute(context.Background(), inputs,
			map[string]any{"template": "restyle this"}, nil)
		if out["image_url"] != "https://img/base.png" {
			t.Errorf("expected passthrough, got %v", out["image_url"])
		}
	})

	t.Run("validate config", func(t *testing.T) {
		if !e.ValidateConfig(map[string]any{"template": "x"}) || e.ValidateConfig(map[string]any{}) {
			t.Error("validate should require template")
		}
	})
}

func TestPromptExecutor_Optimize(t *testing.T) {
	t.Run("uses optimized prompt", func(t *testing.T) {
		opt := &fakeOptimizer{result: "cinematic espresso, golden hour"}
		e := NewPromptExecutor(opt)
		out, err := e.Execute(context.Background(), nil,
			map[string]any{"template": "espresso", "ai_optimize": true}, nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !opt.called {
			t.Fatal("optimizer should have been called")
		}
		if out["prompt"] != "cinematic espresso, golden hour" {
			t.Errorf("got %v", out["prompt"])
		}
	})

	t.Run("optimizer failure keeps raw prompt", func(t *testing.T) {
		opt := &fakeOptimizer{err: errors.New("llm down")}
		e := NewPromptExecutor(opt)
		out, err := e.Execute(context.Background(), nil,
			map[string]any{"template": "espresso", "ai_optimize": true}, nil)
		if err != nil {
			t.Fatalf("optimizer failure must not fail the node: %v", err)
		}
		if out["prompt"] != "espresso" {
			t.Errorf("got %v", out["prompt"])
		}
	})

	t.Run("flag off skips optimizer", func(t *testing.T) {
		opt := &fakeOptimizer{result: "should not appear"}
		e := NewPromptExecutor(opt)
		out, _ := e.Execute(context.Background(), nil,
			map[string]any{"template": "espresso"}, nil)
		if opt.called {
			t.Error("optimizer should not run without ai_optimize")
		}
		if out["prompt"] != "espresso" {
			t.Errorf("got %v", out["prompt"])
		}
	})
}

func TestSocialMediaExecutor(t *testing.T) {
	t.Run("fetches with defaults", func(t *testing.T) {
		src := &fakeTrendSource{result: map[string]any{
			"posts":  []any{},
			"trends": []any{"minimal"},
		}}
		e := NewSocialMediaExecutor(src)
		out, err := e.Execute(context.Background(), nil,
			map[string]any{"subreddit": "espresso"}, nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if src.subreddit != "espresso" || src.sort != "hot" || src.limit != 10 {
			t.Errorf("defaults not applied: %q %q %d", src.subreddit, src.sort, src.limit)
		}
		trends, _ := out["trends"].([]any)
		if len(trends) != 1 || trends[0] != "minimal" {
			t.Errorf("got %v", out["trends"])
		}
	})

	t.Run("overlays fetch result on passthrough inputs", func(t *testing.T) {
		src := &fakeTrendSource{result: map[string]any{"trends": []any{"fresh"}}}
		e := NewSocialMediaExecutor(src)
		inputs := map[string]map[string]any{
			"text-1": {"text": "upstream", "trends": "stale"},
		}
		out, err := e.Execute(context.Background(), inputs,
			map[string]any{"subreddit": "ads", "limit": float64(5)}, nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if out["text"] != "upstream" {
			t.Error("upstream keys should pass through")
		}
		trends, _ := out["trends"].([]any)
		if len(trends) != 1 || trends[0] != "fresh" {
			t.Errorf("fetch result should win, got %v", out["trends"])
		}
		if src.limit != 5 {
			t.Errorf("JSON float limit should coerce, got %d", src.limit)
		}
	})

	t.Run("unsupported platform", func(t *testing.T) {
		e := NewSocialMediaExecutor(&fakeTrendSource{})
		_, err := e.Execute(context.Background(), nil,
			map[string]any{"platform": "tiktok"}, nil)
		if err == nil || !strings.Contains(err.Error(), "Unsupported platform: tiktok") {
			t.Fatalf("got %v", err)
		}
	})

	t.Run("validate config", func(t *testing.T) {
		e := NewSocialMediaExecutor(nil)
		if !e.ValidateConfig(map[string]any{"subreddit": "x"}) {
			t.Error("reddit with subreddit should validate")
		}
		if e.ValidateConfig(map[string]any{"platform": "reddit"}) {
			t.Error("reddit without subreddit should not validate")
		}
		if e.ValidateConfig(map[string]any{"platform": "tiktok", "subreddit": "x"}) {
			t.Error("non-reddit platform should not validate")
		}
	})
}

func TestImageModelExecutor(t *testing.T) {
	ctx := context.Background()

	t.Run("no prompt fails", func(t *testing.T) {
		e := NewImageModelExecutor(&fakeGenerator{}, nil)
		_, err := e.Execute(ctx, nil, map[string]any{"model": "m"}, nil)
		if err == nil || !strings.Contains(err.Error(), "No prompt provided to image model node") {
			t.Fatalf("got %v", err)
		}
	})

	t.Run("generates with defaults and records generation", func(t *testing.T) {
		gen := &fakeGenerator{result: map[string]any{
			"image_urls": []any{"https://img/1.png", "https://img/2.png"},
			"cost":       0.006,
			"seed":       float64(42),
		}}
		store := &fakeGenerationStore{}
		e := NewImageModelExecutor(gen, store)

		inputs := map[string]map[string]any{"prompt-1": {"prompt": "espresso ad"}}
		ec := &Context{ExecutionID: "exec-1", UserID: "user-1"}
		out, err := e.Execute(ctx, inputs, map[string]any{}, ec)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if gen.modelID != defaultModelID {
			t.Errorf("expected default model, got %q", gen.modelID)
		}
		if gen.numImages != 1 {
			t.Errorf("expected 1 image by default, got %d", gen.numImages)
		}
		if gen.params["aspect_ratio"] != "1:1" {
			t.Errorf("expected default aspect ratio, got %v", gen.params["aspect_ratio"])
		}
		if out["seed"] != float64(42) {
			t.Error("generator metadata should pass through")
		}

		if len(store.created) != 1 {
			t.Fatalf("expected one generation record, got %d", len(store.created))
		}
		rec := store.created[0]
		if rec.ExecutionID != "exec-1" || rec.Prompt != "espresso ad" {
			t.Errorf("generation record wrong: %+v", rec)
		}
		if len(rec.ImageURLs) != 2 || rec.Cost != 0.006 {
			t.Errorf("generation record wrong: %+v", rec)
		}
	})

	t.Run("output config overrides parameters", func(t *testing.T) {
		gen := &fakeGenerator{result: map[string]any{"image_urls": []any{}, "cost": 0.0}}
		e := NewImageModelExecutor(gen, nil)

		inputs := map[string]map[string]any{"prompt-1": {"prompt": "p"}}
		config := map[string]any{
			"model":      "fal-ai/nano-banana",
			"parameters": map[string]any{"num_images": float64(1), "aspect_ratio": "1:1"},
		}
		ec := &Context{
			ExecutionID:  "exec-1",
			OutputConfig: map[string]any{"num_images": float64(4), "aspect_ratio": "9:16"},
		}
		if _, err := e.Execute(ctx, inputs, config, ec); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if gen.numImages != 4 {
			t.Errorf("expected override to 4, got %d", gen.numImages)
		}
		if gen.params["aspect_ratio"] != "9:16" {
			t.Errorf("expected override to 9:16, got %v", gen.params["aspect_ratio"])
		}
		if gen.modelID != "fal-ai/nano-banana" {
			t.Errorf("got %q", gen.modelID)
		}
	})

	t.Run("generator error surfaces", func(t *testing.T) {
		gen := &fakeGenerator{err: errors.New("provider down")}
		e := NewImageModelExecutor(gen, nil)
		inputs := map[string]map[string]any{"prompt-1": {"prompt": "p"}}
		_, err := e.Execute(ctx, inputs, map[string]any{}, nil)
		if err == nil || !strings.Contains(err.Error(), "provider down") {
			t.Fatalf("got %v", err)
		}
	})

	t.Run("no execution id skips recording", func(t *testing.T) {
		gen := &fakeGenerator{result: map[string]any{"image_urls": []any{"u"}, "cost": 0.01}}
		store := &fakeGenerationStore{}
		e := NewImageModelExecutor(gen, store)
		inputs := map[string]map[string]any{"prompt-1": {"prompt": "p"}}
		if _, err := e.Execute(ctx, inputs, map[string]any{}, nil); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(store.created) != 0 {
			t.Error("no generation should be recorded without an execution id")
		}
	})
}

func TestOutputExecutor(t *testing.T) {
	e := &OutputExecutor{}
	ctx := context.Background()

	t.Run("truncates to num_images", func(t *testing.T) {
		inputs := map[string]map[string]any{
			"model-1": {"image_urls": []any{"a", "b", "c"}},
		}
		out, err := e.Execute(ctx, inputs, map[string]any{"num_images": float64(2)}, nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		final, _ := out["final_images"].([]string)
		if len(final) != 2 || final[0] != "a" || final[1] != "b" {
			t.Errorf("got %v", out["final_images"])
		}
	})

	t.Run("defaults to all images", func(t *testing.T) {
		inputs := map[string]map[string]any{
			"model-1": {"image_urls": []any{"a", "b"}},
		}
		out, _ := e.Execute(ctx, inputs, map[string]any{}, nil)
		final, _ := out["final_images"].([]string)
		if len(final) != 2 {
			t.Errorf("got %v", out["final_images"])
		}
	})

	t.Run("scalar image_urls wraps", func(t *testing.T) {
		inputs := map[string]map[string]any{
			"model-1": {"image_urls": "solo.png"},
		}
		out, _ := e.Execute(ctx, inputs, map[string]any{}, nil)
		final, _ := out["final_images"].([]string)
		if len(final) != 1 || final[0] != "solo.png" {
			t.Errorf("got %v", out["final_images"])
		}
	})

	t.Run("no images yields empty list", func(t *testing.T) {
		out, _ := e.Execute(ctx, nil, map[string]any{}, nil)
		final, ok := out["final_images"].([]string)
		if !ok || len(final) != 0 {
			t.Errorf("got %v", out["final_images"])
		}
	})
}

type fakeMirror struct {
	execID string
	seen   []string
}

func (m *fakeMirror) MirrorImages(_ context.Context, executionID string, urls []string) []string {
	m.execID = executionID
	m.seen = urls
	mirrored := make([]string, len(urls))
	for i, u := range urls {
		mirrored[i] = "https://cdn.example/" + u
	}
	return mirrored
}

func TestOutputExecutorMirrorsFinalImages(t *testing.T) {
	mirror := &fakeMirror{}
	e := NewOutputExecutor(mirror)
	inputs := map[string]map[string]any{
		"model-1": {"image_urls": []any{"a.png", "b.png", "c.png"}},
	}
	ec := &Context{ExecutionID: "exec-1"}

	out, err := e.Execute(context.Background(), inputs, map[string]any{"num_images": float64(2)}, ec)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	final, _ := out["final_images"].([]string)
	if len(final) != 2 || final[0] != "https://cdn.example/a.png" {
		t.Errorf("got %v", out["final_images"])
	}
	if mirror.execID != "exec-1" {
		t.Errorf("mirror saw execution id %q", mirror.execID)
	}
	// Only the truncated list reaches the mirror.
	if len(mirror.seen) != 2 {
		t.Errorf("mirror saw %v", mirror.seen)
	}
}
