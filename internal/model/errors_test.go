package model

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestValidationError_Error(t *testing.T) {
	if got := NewValidationError("per_page", "10以上を指定してください").Error(); got != "per_page: 10以上を指定してください" {
		t.Errorf("Error() = %q", got)
	}
	if got := NewValidationError("", "不正な値です").Error(); got != "不正な値です" {
		t.Errorf("フィールドなしの Error() = %q", got)
	}
}

func TestAPIError_Error(t *testing.T) {
	err := &APIError{Status: 422, Message: "Validation failed", Violations: []string{"a", "b"}}
	if got := err.Error(); got != "[422] Validation failed (a, b)" {
		t.Errorf("Error() = %q", got)
	}

	err = &APIError{Status: 500, Message: DefaultAPIErrorMessage}
	if got := err.Error(); got != "[500] API request failed" {
		t.Errorf("Error() = %q", got)
	}
}

func TestNetworkError_UnwrapsCause(t *testing.T) {
	err := fmt.Errorf("取得失敗: %w", &NetworkError{Op: "GET /v1/me", Err: context.DeadlineExceeded})

	if !errors.Is(err, context.DeadlineExceeded) {
		t.Error("errors.Is で原因エラーを辿れるべき")
	}
	var netErr *NetworkError
	if !errors.As(err, &netErr) || netErr.Op != "GET /v1/me" {
		t.Errorf("errors.As で NetworkError を取り出せるべき: %v", err)
	}
}

func TestSession_MasksToken(t *testing.T) {
	s := NewSession("secret")
	if s.Token() != "secret" {
		t.Errorf("Token() = %q", s.Token())
	}
	if got := fmt.Sprint(s); got != "Session(***)" {
		t.Errorf("String() = %q, トークンを含めてはならない", got)
	}

	s.Clear()
	s.Clear()
	if s.Token() != "" {
		t.Error("Clear 後のトークンは空であるべき")
	}
	if s.String() != "Session(empty)" {
		t.Errorf("String() = %q", s.String())
	}
}

func TestLinkCard_TagNames(t *testing.T) {
	var nilCard *LinkCard
	if nilCard.TagNames() != nil {
		t.Error("nil カードの TagNames は nil であるべき")
	}

	card := &LinkCard{Tags: []LinkCardTag{{Name: "b"}, {Name: ""}, {Name: "a"}}}
	got := card.TagNames()
	if len(got) != 2 || got[0] != "b" || got[1] != "a" {
		t.Errorf("TagNames() = %v, want [b a]", got)
	}
}
