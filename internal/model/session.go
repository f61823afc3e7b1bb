package model

import "sync"

// Session は認証済みセッションのBearerトークンを保持する。
// トークンは不透明な値として扱い、内容の解釈や永続化は行わない。
// 各コンポーネントにはポインタで共有する。
type Session struct {
	mu    sync.RWMutex
	token string
}

// NewSession はトークンを保持するSessionを生成する。
func NewSession(token string) *Session {
	return &Session{token: token}
}

// Token は現在のトークンを返す。ログアウト後は空文字列。
func (s *Session) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// Clear はログアウト時にトークンを破棄する。
func (s *Session) Clear() {
	s.mu.Lock()
	s.token = ""
	s.mu.Unlock()
}

// String はログ出力でトークンが漏れないようにマスクした表現を返す。
func (s *Session) String() string {
	if s.Token() == "" {
		return "Session(empty)"
	}
	return "Session(***)"
}
