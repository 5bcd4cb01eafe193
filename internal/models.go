package internal

type User struct {
	ID       int    `json:"id"`
	Username string `json:"username"`
	Role     string `json:"role"`
	Credits  int    `json:"generations"`
}

type playRoundRequest struct {
	Prompt string `json:"prompt"`
}

type voteRequest struct {
	RoundID  string `json:"round_id"`
	WinnerID string `json:"winner_id"`
}

type verifyPaymentRequest struct {
	SessionID string `json:"session_id"`
	PackID    string `json:"pack_id"`
}

type personaRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}
