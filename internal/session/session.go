// Package session はサインイン中のユーザーごとの状態（表示中のビューと通知）を保持する。
// 同じセッションのカート・チェックアウト・注文履歴は1つのContextを共有する。
package session

import (
	"fmt"
	"sync"
	"time"

	"github.com/hitoshi/datanet/internal/model"
)

// View はUIの現在の画面。
type View string

const (
	ViewHome         View = "home"
	ViewCart         View = "cart"
	ViewTransactions View = "transactions"
)

// ParseView は文字列をViewに変換する。未知の値はエラー。
func ParseView(s string) (View, error) {
	switch v := View(s); v {
	case ViewHome, ViewCart, ViewTransactions:
		return v, nil
	default:
		return "", fmt.Errorf("unknown view: %q", s)
	}
}

// NoticeLevel は通知の種類。
type NoticeLevel string

const (
	NoticeSuccess NoticeLevel = "success"
	NoticeInfo    NoticeLevel = "info"
	NoticeWarning NoticeLevel = "warning"
	NoticeError   NoticeLevel = "error"
)

// maxNotices は未取得の通知の保持上限。超えた分は古い順に捨てる。
const maxNotices = 50

// Notice はUIに一度だけ表示する通知。
type Notice struct {
	Level   NoticeLevel `json:"level"`
	Message string      `json:"message"`
	At      time.Time   `json:"at"`
}

// Context はセッション単位の共有状態。
type Context struct {
	user model.User
	now  func() time.Time

	mu      sync.Mutex
	view    View
	notices []Notice
}

// New はユーザーのセッションContextを生成する。初期ビューはhome。
// パスワードは保持しない。
func New(user model.User) *Context {
	return &Context{
		user: user.Public(),
		now:  time.Now,
		view: ViewHome,
	}
}

// User はセッションのユーザーを返す。
func (c *Context) User() model.User {
	return c.user
}

// UserID はセッションのユーザーIDを返す。
func (c *Context) UserID() model.RecordID {
	return c.user.ID
}

// View は現在のビューを返す。
func (c *Context) View() View {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.view
}

// SetView はビューを切り替える。
func (c *Context) SetView(v View) {
	c.mu.Lock()
	c.view = v
	c.mu.Unlock()
}

// Notify は通知を追加する。
func (c *Context) Notify(level NoticeLevel, message string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.notices = append(c.notices, Notice{Level: level, Message: message, At: c.now()})
	if over := len(c.notices) - maxNotices; over > 0 {
		c.notices = append([]Notice(nil), c.notices[over:]...)
	}
}

// Success は成功通知を追加する。
func (c *Context) Success(message string) { c.Notify(NoticeSuccess, message) }

// Warn は警告通知を追加する。
func (c *Context) Warn(message string) { c.Notify(NoticeWarning, message) }

// Error はエラー通知を追加する。
func (c *Context) Error(message string) { c.Notify(NoticeError, message) }

// DrainNotices は未取得の通知を古い順に返し、キューを空にする。
func (c *Context) DrainNotices() []Notice {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := c.notices
	c.notices = nil
	if out == nil {
		return []Notice{}
	}
	return out
}

// PeekNotices は未取得の通知をキューを変えずに返す。
func (c *Context) PeekNotices() []Notice {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Notice{}, c.notices...)
}
