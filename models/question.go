package models

// Question is one entry of the daily CS question bank
type Question struct {
	ID           int      `json:"id"`
	Category     string   `json:"category"`
	Question     string   `json:"question"`
	Options      []string `json:"options"`
	CorrectIndex int      `json:"correct_index"`
}

// ContributionQuestion asks how many contributions a GitHub user made on a day.
type ContributionQuestion struct {
	Username     string `json:"username"`
	Text         string `json:"text"`
	Options      []int  `json:"options"`
	CorrectIndex int    `json:"correct_index"`
	Date         string `json:"date"`
}
