package models

type Author struct {
	UID         string  `json:"uid"`
	DisplayName string  `json:"displayName"`
	PhotoURL    *string `json:"photoURL,omitempty"`
}

type Media struct {
	Type     string   `json:"type"`
	URL      string   `json:"url"`
	Width    *int     `json:"width,omitempty"`
	Height   *int     `json:"height,omitempty"`
	Duration *float64 `json:"duration,omitempty"`
}

type Fitness struct {
	Chips []string `json:"chips"`
	Line  *string  `json:"line,omitempty"`
	PR    *bool    `json:"pr,omitempty"`
}

type ThreadStats struct {
	Likes   int `json:"likes"`
	Replies int `json:"replies"`
	Reposts int `json:"reposts"`
}

// Thread is a feed item as held by the client. ReplyCount and IsSelf are
// client-side fields; everything else mirrors the API payload.
type Thread struct {
	ID         string      `json:"id"`
	Author     Author      `json:"author"`
	CreatedAt  string      `json:"createdAt"`
	Text       string      `json:"text"`
	Tags       []string    `json:"tags"`
	Media      []Media     `json:"media"`
	Fitness    *Fitness    `json:"fitness,omitempty"`
	Stats      ThreadStats `json:"stats"`
	LikedByMe  bool        `json:"likedByMe"`
	ReplyCount int         `json:"replyCount"`
	IsSelf     bool        `json:"isSelf,omitempty"`
}

type ThreadPage struct {
	Items      []Thread `json:"items"`
	NextCursor *string  `json:"nextCursor"`
}
