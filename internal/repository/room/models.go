package room

type Member struct {
	Username  string `redis:"username"`
	Color     string `redis:"color"`
	AvatarURL string `redis:"avatar_url"`
	IsAdmin   bool   `redis:"is_admin"`
	IsOnline  bool   `redis:"is_online"`
}

type QueueEntry struct {
	URL       string `redis:"url"`
	AddedByID string `redis:"added_by_id"`
}

type CreateRoomSession struct {
	Username        string `redis:"username"`
	Color           string `redis:"color"`
	AvatarURL       string `redis:"avatar_url"`
	InitialVideoURL string `redis:"initial_video_url"`
}

type JoinRoomSession struct {
	Username  string `redis:"username"`
	Color     string `redis:"color"`
	AvatarURL string `redis:"avatar_url"`
	RoomID    string `redis:"room_id"`
}
