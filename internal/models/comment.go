package models

type Comment struct {
	ID              string    `json:"id"`
	ParentCommentID *string   `json:"parentCommentId,omitempty"`
	Author          Author    `json:"author"`
	Text            string    `json:"text"`
	CreatedAt       string    `json:"createdAt"`
	LikeCount       int       `json:"likeCount"`
	LikedByMe       bool      `json:"likedByMe"`
	Replies         []Comment `json:"replies"`
}
