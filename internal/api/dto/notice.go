package dto

type NoticeTranRequest struct {
	Gubun    string `json:"gubun"`
	NoticeID string `json:"noticeId"`
	Title    string `json:"title"`
	Content  string `json:"content"`
}

type NoticeTranResponse struct {
	Success  bool   `json:"success"`
	Message  string `json:"message"`
	NoticeID int64  `json:"noticeId"`
}

type NoticeFileDeleteRequest struct {
	Gubun    string `json:"gubun"`
	FileID   string `json:"fileId"`
	NoticeID string `json:"noticeId"`
}
