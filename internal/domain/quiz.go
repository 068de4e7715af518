package domain

type Quiz struct {
	Question    string   `json:"question"`
	Choices     []string `json:"choices"`
	AnswerIndex int      `json:"answer_index"`
}

// QuizSection is a quiz interlude shown after the slide numbered SlideNo
// (1-based, matching Script.SlideNo).
type QuizSection struct {
	Name    string `json:"name"`
	SlideNo int    `json:"slide_no"`
	Quizzes []Quiz `json:"quizzes"`
}

type QuizSectionList struct {
	QuizSections []QuizSection `json:"quiz_sections"`
}
