package quiz

import "strings"

const welcomeText = "Welcome to *Commit Quiz Bot*! 🎯\n\n" +
	"CS Daily mode: /daily (5 questions a day). Finish all five and your GitHub graph gets 5 commits.\n" +
	"Set a reminder with `/notify HH:MM [Area/City]`.\n" +
	"GitHub mode: `/setuser <username>` then /quiz\n"

const helpText = "👋 *Commit Quiz Bot*\n\n" +
	"Commands:\n" +
	"• /start: welcome\n" +
	"• /daily: 5-question CS quiz (DSA, Cloud, Cybersecurity, DevOps, AI/ML, Data Science, General CS)\n" +
	"• `/notify HH:MM [Area/City]`: daily reminder time (e.g. `/notify 07:30 Asia/Kolkata`)\n" +
	"• /when: show your next reminder time\n" +
	"• /unnotify: disable your daily reminder\n" +
	"• /streak: show your current and best streak\n" +
	"• /streakboard: top streaks in this chat\n" +
	"• `/setuser <github-username>`: set your GitHub username (for /quiz)\n" +
	"• /quiz: GitHub contribution-count question\n" +
	"• /score: overall /quiz score\n" +
	"• `/forcecommit [n] [tag]`: manually trigger n commits (debug graph)\n" +
	"• /help: this message\n"

var markdownEscaper = strings.NewReplacer("_", "\\_", "*", "\\*", "[", "\\[", "`", "\\`")

// escape makes user or bank text safe inside legacy Markdown.
func escape(s string) string {
	return markdownEscaper.Replace(s)
}
