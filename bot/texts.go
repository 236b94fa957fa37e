package bot

const (
	buttonAbout   = "ℹ️ What can the bot do"
	buttonProfile = "👤 My profile"
	buttonImage   = "🖼 Create image"
	buttonInvite  = "🎁 Invite friends"
	buttonAccept  = "✅ I accept"

	welcomeText = "🚀 Welcome!\n\n" +
		"I can:\n" +
		"• answer questions\n" +
		"• write and edit text\n" +
		"• create images\n\n" +
		"Pick an action below 👇"

	helpText = "You can use the following commands:\n" +
		"/account - your profile and quota\n" +
		"/photo <description> - create an image\n" +
		"/ref - invite friends and earn bonus images\n" +
		"/nano - fast chat model\n" +
		"/pro - smart chat model\n" +
		"/topic <subject> - set a subject of conversation\n" +
		"/clear - clear bot memory to begin new topic\n" +
		"/terms - terms of service\n" +
		"Any other text is answered by the assistant."

	termsText = "📜 Terms of service\n\n" +
		"Generated content is provided as is. Do not submit illegal content " +
		"or personal data of other people. Usage is limited by a weekly free quota.\n\n" +
		"Press «" + buttonAccept + "» or send /accept to continue."

	termsPromptText   = "Please accept the terms of service first. Send /terms to read them."
	termsAcceptedText = "Thank you! The terms are accepted, all features are unlocked."

	imagePromptText   = "Describe the image you want to create 🎨"
	imageProgressText = "Creating the image... ⏳"
	imageFailedText   = "Could not create the image 😢 Your quota was not charged, please try again later."
	quotaExhausted    = "You have used your free quota for this week. It renews on %s.\nInvite friends with /ref to earn bonus generations."

	modeNanoText = "Nano mode is on ⚡"
	modeProText  = "Pro mode is on 🧠"
	clearedText  = "Memory cleared. Let's talk."
	topicText    = "Let's talk about %s."
	noTopicText  = "Usage: /topic <subject>"

	errorResponse   = "Sorry, I'm not feeling well today. Please try again later."
	unavailableText = "The service is temporarily unavailable. Please try again in a few minutes."

	profileText = "👤 Profile\n\n" +
		"ID: %d\n" +
		"Name: %s\n" +
		"Mode: %s\n" +
		"Images left this week: %d\n" +
		"Weekly free limit: %d\n" +
		"Bonus from referrals: %d\n" +
		"Quota renews: %s"

	referralText = "🎁 Invite friends\n\n" +
		"Share your link:\n%s\n\n" +
		"You get +%d generations for every friend who starts using the bot.\n" +
		"Invited: %d, active: %d"
)
