package setup

import (
	"fmt"

	"github.com/nextlevelbuilder/modbot/internal/telegram"
)

func welcomeText(bot string) string {
	return fmt.Sprintf(`🤖 <b>Welcome to ModFi Bot!</b>

I'm an AI assistant that helps manage your Telegram groups with custom context and intelligent responses.

<b>How it works:</b>
1️⃣ Add me to your group chat
2️⃣ Use /settings@%[1]s in the group
3️⃣ Complete setup on our website
4️⃣ I'll respond intelligently using your group's context

<b>Ready to get started?</b>
Add me to your group and run /settings@%[1]s to begin!`, bot)
}

func setupLinkText(groupTitle, setupURL string) string {
	return fmt.Sprintf(`🔧 <b>Setup Link for %s</b>

Perfect! Here's your secure setup link:
%s

⚠️ <i>Link expires in 24 hours</i>

Complete the setup to configure your group's AI context and start using intelligent responses.`, telegram.EscapeHTML(groupTitle), setupURL)
}

func expiredText(bot string) string {
	return fmt.Sprintf(`❌ <b>Setup Link Expired</b>

This setup link has expired or already been used.

Please go back to your group and run /settings@%s again to get a new setup link.`, bot)
}

func settingsInPrivateText(bot string) string {
	return fmt.Sprintf(`❌ <b>Settings command must be used in a group!</b>

Please:
1️⃣ Add me to your group chat
2️⃣ Run /settings@%s in the group
3️⃣ I'll guide you through the setup process`, bot)
}

const notAdminText = `❌ <b>Only group administrators can configure settings!</b>

Please ask a group admin to run this command.`

const setupErrorText = `❌ <b>Setup Error</b>

There was an error setting up your group. Please try again later or contact support.`

func groupSetupText(name string) string {
	return fmt.Sprintf(`🔧 <b>Group Setup</b>

@%s, let's configure your group's AI context!

For security, I'll provide the setup link in our private chat. Click the button below to continue.

⚠️ <i>Setup link expires in 24 hours</i>`, telegram.EscapeHTML(name))
}
