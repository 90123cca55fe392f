package bot

import (
	"fmt"
	"strings"
)

const (
	maxReplyLength = 4000
	truncatedMark  = "\n\n... (message truncated)"
)

const (
	textProcessing   = "🔍 *Analyzing the photo...*\n\nIdentifying the dish and counting calories... ⏳"
	textGenericError = "❌ An error occurred while processing the photo. Please try again."
	textAnalyzeTips  = "📸 Send a photo of your food to get a calorie analysis!\n\nTip: take a sharp photo in good lighting for the best result."
	textStillBusy    = "⏳ Your previous photo is still being analyzed. Please wait for the result before sending another one."
	textLimitReached = "\n❌ Limit reached - get a subscription to continue"
)

const welcomeFormat = `✨ *Welcome to CalorieAI!* ✨

Hi, %s! 🎉

I am your personal AI nutritionist! 📸🤖

*🎯 What I can do:*
• Recognize dishes from a photo
• Estimate calories and macros (protein, fat, carbohydrates)
• List the ingredients
• Give personal nutrition advice

*📊 Plans:*
• 🆓 Free: %d analyses per day
• 💎 Premium: unlimited

Just send me a photo of your food and I will analyze it! 📸`

const helpFormat = `🆘 *Help*

*📸 How to use:*
1. Send a photo of your food to the chat
2. Wait for the analysis (10-30 seconds)
3. Get the calories and macros breakdown

*🎯 Tips for a better analysis:*
• Shoot in good lighting
• Keep the food in the center of the frame
• Avoid blurry photos
• Show all the ingredients

*📊 Limits:*
• Free: %d analyses per day
• With a subscription: unlimited`

const subscribeText = `💎 *Premium subscription*

Get unlimited access to calorie analysis!

*🎁 Benefits:*
• ♾️ Unlimited analyses
• 🚀 Priority processing
• 📈 Detailed statistics
• 🔔 Personal recommendations

*💳 Price:* 299₽/month

⚠️ _Payment is temporarily unavailable. We are working on the payment integration._`

const statsFormat = `📊 *Your statistics*

👤 User: %s
📅 Requests today: %d/%d
💎 Subscription: %s

%s`

func welcomeText(name string, limit int) string {
	return fmt.Sprintf(welcomeFormat, escapeMarkdown(name), limit)
}

func helpText(limit int) string {
	return fmt.Sprintf(helpFormat, limit)
}

func statsText(name string, requestsToday, limit int, subscribed bool) string {
	state, note := "Inactive ❌", "💎 Get a subscription for unlimited analyses!"
	if subscribed {
		state, note = "Active ✅", "🎉 You have unlimited access!"
	}
	return fmt.Sprintf(statsFormat, escapeMarkdown(name), requestsToday, limit, state, note)
}

// usageFooter is appended to every analysis reply.
func usageFooter(requestsToday, limit int, subscribed bool) string {
	footer := fmt.Sprintf("\n\n📊 Requests used today: %d/%d", requestsToday, limit)
	if requestsToday >= limit && !subscribed {
		footer += textLimitReached
	}
	return footer
}

// truncate caps text at maxReplyLength characters plus a marker.
func truncate(text string) string {
	runes := []rune(text)
	if len(runes) <= maxReplyLength {
		return text
	}
	return string(runes[:maxReplyLength]) + truncatedMark
}

var markdownEscaper = strings.NewReplacer("_", `\_`, "*", `\*`, "`", "\\`", "[", `\[`)

// escapeMarkdown escapes user-supplied text embedded in Markdown replies.
func escapeMarkdown(s string) string {
	return markdownEscaper.Replace(s)
}

func startKeyboard() Keyboard {
	return Keyboard{
		{{Text: "📸 Analyze a photo", Data: CallbackAnalyze}},
		{{Text: "📊 My statistics", Data: CallbackStats}},
	}
}

func deniedKeyboard() Keyboard {
	return Keyboard{
		{{Text: "💎 Get a subscription", Data: CallbackSubscribe}},
		{{Text: "📊 Statistics", Data: CallbackStats}},
	}
}

func statsKeyboard(subscribed bool) Keyboard {
	var kb Keyboard
	if !subscribed {
		kb = append(kb, []Button{{Text: "💎 Get a subscription", Data: CallbackSubscribe}})
	}
	return append(kb, []Button{{Text: "📸 Analyze a photo", Data: CallbackAnalyze}})
}

func subscribeKeyboard() Keyboard {
	return Keyboard{
		{{Text: "📊 My statistics", Data: CallbackStats}},
		{{Text: "📸 Analyze a photo", Data: CallbackAnalyze}},
	}
}
