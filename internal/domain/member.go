package domain

type Member struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	Color     string `json:"color"`
	AvatarURL string `json:"avatar_url"`
	IsAdmin   bool   `json:"is_admin"`
	IsOnline  bool   `json:"is_online"`
}
