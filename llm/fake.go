// ABOUTME: Scripted fake Client and deterministic Embedder for tests and offline demos.
// ABOUTME: The fake records every request and pops canned replies (or errors) in order.
package llm

import (
	"context"
	"fmt"
	"hash/fnv"
	"strings"
	"sync"
)

// Fake is a scripted Client. Replies are consumed in order; when the script
// runs out, Complete echoes the last user message. Errors queued via FailNext
// are returned before any scripted reply.
type Fake struct {
	mu       sync.Mutex
	replies  []string
	errs     []error
	Requests []Request
}

// Compile-time check that Fake implements Client.
var _ Client = (*Fake)(nil)

// NewFake creates a fake client with the given scripted replies.
func NewFake(replies ...string) *Fake {
	return &Fake{replies: replies}
}

// FailNext queues an error to be returned by the next Complete call.
func (f *Fake) FailNext(err error) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs = append(f.errs, err)
	return f
}

// Complete records the request and returns the next scripted reply or error.
func (f *Fake) Complete(ctx context.Context, req Request) (*Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.Requests = append(f.Requests, req)

	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		return nil, err
	}

	var content string
	if len(f.replies) > 0 {
		content = f.replies[0]
		f.replies = f.replies[1:]
	} else {
		content = "echo: " + lastUserMessage(req)
	}

	return &Response{Content: content, Model: "fake"}, nil
}

// lastUserMessage returns the content of the final user-role message.
func lastUserMessage(req Request) string {
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role == RoleUser {
			return req.Messages[i].Content
		}
	}
	return ""
}

// FakeEmbedder is a deterministic Embedder: texts sharing more words get
// closer vectors, which is enough for retrieval tests without a real model.
type FakeEmbedder struct {
	Dim int
}

// Compile-time check that FakeEmbedder implements Embedder.
var _ Embedder = (*FakeEmbedder)(nil)

// Embed hashes each word of each text into a fixed-dimension bag-of-words
// vector.
func (e *FakeEmbedder) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	dim := e.Dim
	if dim <= 0 {
		dim = 64
	}
	vectors := make([][]float64, len(texts))
	for i, text := range texts {
		vec := make([]float64, dim)
		for _, word := range strings.Fields(strings.ToLower(text)) {
			h := fnv.New32a()
			if _, err := h.Write([]byte(word)); err != nil {
				return nil, fmt.Errorf("hash word: %w", err)
			}
			vec[int(h.Sum32())%dim]++
		}
		vectors[i] = vec
	}
	return vectors, nil
}
