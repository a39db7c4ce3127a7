package room

type SetCreateRoomSessionParams struct {
	ConnectToken    string
	Username        string
	Color           string
	AvatarURL       string
	InitialVideoURL string
}

type SetJoinRoomSessionParams struct {
	ConnectToken string
	Username     string
	Color        string
	AvatarURL    string
	RoomID       string
}

type SetMemberParams struct {
	MemberID  string
	Username  string
	Color     string
	AvatarURL string
	IsAdmin   bool
	IsOnline  bool
	RoomID    string
}

type RemoveMemberParams struct {
	MemberID string
	RoomID   string
}

type AddQueueEntryParams struct {
	EntryID   string
	URL       string
	AddedByID string
	RoomID    string
}

type RemoveQueueEntryParams struct {
	EntryID string
	RoomID  string
}

type GetQueueEntryParams struct {
	EntryID string
	RoomID  string
}
