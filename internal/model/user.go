package model

// User はサービス利用ユーザーを表す。
// パスワードはレコードストアのクエリフィルタで照合されるため平文のまま保持する。
type User struct {
	ID       RecordID `json:"id,omitempty"`
	Name     string   `json:"name"`
	Email    string   `json:"email"`
	Password string   `json:"password,omitempty"`
	Phone    string   `json:"phone,omitempty"`
}

// Public はパスワードを除いたユーザー情報を返す。
func (u User) Public() User {
	u.Password = ""
	return u
}
