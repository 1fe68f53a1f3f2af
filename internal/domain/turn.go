package domain

// Decision is the interview policy's verdict on a transcript.
type Decision struct {
	Complete bool
	Question string
}

// Ask builds a decision to continue with question.
func Ask(question string) Decision {
	return Decision{Question: question}
}

// Finish builds a decision to end the interview.
func Finish() Decision {
	return Decision{Complete: true}
}

// TurnResult is the outcome of a successful user turn. It is either
// NextQuestion or Completed.
type TurnResult interface {
	isTurnResult()
}

// NextQuestion means the interview continues with Question.
type NextQuestion struct {
	Question string
}

// Completed means the interview ended on this turn.
type Completed struct {
	History []Message
	Report  StructuredReport
}

func (NextQuestion) isTurnResult() {}
func (Completed) isTurnResult()    {}
