package slack

import "fmt"

// User-facing message copy lives here so the bot speaks with one voice.
const (
	// MsgGreeting answers a mention that carried no question.
	MsgGreeting = "Hi there! :wave: Mention me with a question and I'll do my best to answer it."

	// MsgFileRejection answers a mention with file attachments.
	MsgFileRejection = "Sorry, I can't read file attachments. Please paste the relevant part as text and ask again."

	// MsgAck tells the user their question was accepted and is being
	// worked on.
	MsgAck = "Let me think about that... :hourglass_flowing_sand:"

	// MsgApology is delivered when answering failed after the question
	// was accepted.
	MsgApology = "Sorry, something went wrong while answering your question. Please try again in a little while."
)

// MsgQuotaExceeded names the limit so users know when to come back.
func MsgQuotaExceeded(limit int) string {
	return fmt.Sprintf("You've reached your limit of %d questions for now. Please try again later. :pray:", limit)
}
