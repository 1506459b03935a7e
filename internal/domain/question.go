package domain

// Question is read-only content served by the question provider.
type Question struct {
	ID            string   `json:"id"`
	Prompt        string   `json:"question"`
	Options       []string `json:"options"`
	CorrectAnswer string   `json:"correctAnswer"`
	Explanation   string   `json:"explanation,omitempty"`
	Board         string   `json:"board,omitempty"`
	Class         string   `json:"class,omitempty"`
	Subject       string   `json:"subject,omitempty"`
	Chapter       string   `json:"chapter,omitempty"`
	Difficulty    string   `json:"difficulty,omitempty"`
	Marks         int      `json:"marks,omitempty"`
}

// IsCorrect reports whether answer matches the correct option.
func (q Question) IsCorrect(answer string) bool {
	return answer != "" && answer == q.CorrectAnswer
}
