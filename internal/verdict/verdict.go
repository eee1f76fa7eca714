// Package verdict turns classifier output into the cards shown to users.
package verdict

import (
	"fmt"

	"spad-go/internal/types"
)

const (
	spoofImage    = "https://i.imgur.com/ZhWCcT1.png"
	bonaFideImage = "https://i.imgur.com/vRqhj7A.png"

	// TimeoutWarning is shown when the extractor produced nothing in time.
	TimeoutWarning = "Error: Unable to generate features. Please try uploading the audio file again."
)

func For(label types.ClassLabel) types.Verdict {
	if label == types.LabelBonaFide {
		return types.Verdict{
			Title:     "Bona Fide Voice",
			Message:   "Yay! Congratulations! This audio file is likely the sweet sound of a genuine human voice. It seems like a wonderful human serenade.",
			ImageURL:  bonaFideImage,
			Celebrate: true,
		}
	}
	return types.Verdict{
		Title:    "Spoof Detected",
		Message:  "Uh-oh! This audio file seems to be crafted by a mischievous machine. Maybe a sneaky robot tried to trick us!",
		ImageURL: spoofImage,
	}
}

// Guess choices for the home page quiz.
const (
	GuessFirst  = "first"
	GuessSecond = "second"
	GuessNone   = "none"
)

type GuessReveal struct {
	Choice  string `json:"choice"`
	Correct bool   `json:"correct"`
	Message string `json:"message"`
}

// Reveal answers the "which one is spoofed" quiz. Both home page clips are
// partially spoofed, so no pick is right.
func Reveal(choice string) (GuessReveal, error) {
	switch choice {
	case GuessFirst, GuessSecond, GuessNone:
	default:
		return GuessReveal{}, fmt.Errorf("verdict: unknown choice %q", choice)
	}
	return GuessReveal{
		Choice: choice,
		Message: "Awwww! Both of them are not bona fide audio :< " +
			"But don't worry, distinguishing between spoofed and bona fide audio can be tricky! " +
			"That's why our Spoof Audio Detection (SpAD) is here for you.",
	}, nil
}
