// Package flow implements the Tipline dialogue engine: the onboarding state
// machine, the rolling conversation flow and the daily-tip prompt.
package flow

// Fixed dialogue texts. The onboarding wording is part of the product
// surface; tests assert on these strings.
const (
	// WelcomeText greets a brand-new contact. The triggering message is not
	// consumed as data.
	WelcomeText = "Welcome to HealthTipsDaily! 🌿 I'm your personal health assistant. " +
		"I can provide daily health tips, answer questions, and help you track your wellness journey. " +
		"To get started, please tell me your name."

	// askInterestsFmt asks for topics once the name is stored.
	askInterestsFmt = "Nice to meet you, %s! What health topics are you most interested in? " +
		"For example: nutrition, fitness, mental health, sleep, etc."

	// askTimeFmt asks for the daily delivery time once interests are stored.
	askTimeFmt = "Great! I'll focus on %s. What time would you prefer to receive daily tips? " +
		"Please specify in 24-hour format (e.g., 08:00 or 18:30)."

	// TimeRepromptText is returned for an unparseable time; no state changes.
	TimeRepromptText = "Sorry, I didn't understand that time format. Please use HH:MM format (e.g., 08:00 or 18:30)."

	// onboardedFmt confirms the schedule and ends onboarding.
	onboardedFmt = "Perfect! I'll send you daily health tips at %s. You're all set up now! " +
		"Feel free to ask me any health-related questions anytime."

	// FallbackReply substitutes for a failed generation; the conversation
	// still advances.
	FallbackReply = "Sorry, there was an error processing your request."

	// SubscribeConfirmFmt confirms a Discord /subscribe command.
	SubscribeConfirmFmt = "You've been subscribed to daily health tips at %s! You'll receive your first tip tomorrow."

	// SubscribeRepromptText is returned for an invalid /subscribe time option.
	SubscribeRepromptText = "Please provide a valid time in HH:MM format (e.g., 08:00 or 18:30)."

	// UnknownCommandText answers unrecognized slash commands.
	UnknownCommandText = "Unknown command."
)
