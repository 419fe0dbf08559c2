package reward

// QuizScore computes the partial reward for a multi-question challenge:
// floor(correct/total * basePoints). A quiz only completes its record
// when every question is answered correctly; partial correctness earns
// partial points without flipping completion.
func QuizScore(correct, total, basePoints int) int {
	if total <= 0 || correct <= 0 {
		return 0
	}
	if correct > total {
		correct = total
	}
	return correct * basePoints / total
}
