package mail

import "fmt"

const logoURL = "https://cloud-6t1azuxh2-hack-club-bot.vercel.app/0siddhi.png"

func mainHTML(body string) string {
	return fmt.Sprintf(`<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <style>
        body { background-color: #ffffff; font-family: Arial, sans-serif; font-size: 16px; line-height: 1.4; color: #333333; margin: 0; padding: 0; }
        .container { max-width: 600px; margin: 0 auto; padding: 20px; text-align: center; }
        .logo { max-width: 200px; margin-bottom: 20px; }
        .message { font-size: 18px; font-weight: bold; margin-bottom: 20px; }
        .body { font-size: 16px; margin-bottom: 20px; }
        .support { font-size: 14px; color: #999999; margin-top: 20px; }
        .highlight { font-weight: bold; }
        .cta { background-color: #4CAF50; color: white; padding: 15px 25px; text-decoration: none; font-size: 16px; border-radius: 5px; display: inline-block; }
    </style>
</head>
%s
</html>`, body)
}

func supportFooter() string {
	return `<div class="support">If you have any questions or need further assistance, please feel free to reach out to us at
        <a href="mailto:info@siddhi.com">info@siddhi.com</a>. We are here to help!</div>`
}

// WelcomeEmail is sent after a successful registration.
func WelcomeEmail(email, name string) string {
	return mainHTML(fmt.Sprintf(`<body>
    <div class="container">
        <a href="#"><img class="logo" src="%s" alt="Siddhi Logo"></a>
        <div class="message">Welcome to Siddhi</div>
        <div class="body">
            <p>Hey %s,</p>
            <p>Your account for <span class="highlight">%s</span> has been created successfully.</p>
            <p>We are glad to have you on board.</p>
        </div>
        %s
    </div>
</body>`, logoURL, name, email, supportFooter()))
}

// VerifyAccountEmail carries the one-time passcode for registration.
func VerifyAccountEmail(email, otp string) string {
	return mainHTML(fmt.Sprintf(`<body>
    <div class="container">
        <a href="#"><img class="logo" src="%s" alt="Siddhi Logo"></a>
        <div class="message">Account Verification</div>
        <div class="body">
            <p>Use the code below to verify <span class="highlight">%s</span>. It is valid for 10 minutes.</p>
            <p class="message">%s</p>
            <p>If you did not request this code, please ignore this email.</p>
        </div>
        %s
    </div>
</body>`, logoURL, email, otp, supportFooter()))
}

// PasswordResetEmail carries the reset link for a forgot-password request.
func PasswordResetEmail(email, name, resetLink string) string {
	return mainHTML(fmt.Sprintf(`<body>
    <div class="container">
        <a href="#"><img class="logo" src="%s" alt="Siddhi Logo"></a>
        <div class="message">Password Reset Request</div>
        <div class="body">
            <p>Hey %s,</p>
            <p>We received a request to reset the password for your account associated with the email <span class="highlight">%s</span>.</p>
            <p>If you made this request, please click the button below to reset your password:</p>
            <div style="text-align: center; margin: 20px;">
                <a href="%s" class="cta">Reset Your Password</a>
            </div>
            <p>If you did not request this, please ignore this email or contact us to secure your account.</p>
        </div>
        %s
    </div>
</body>`, logoURL, name, email, resetLink, supportFooter()))
}

// PasswordUpdatedEmail confirms a completed password reset.
func PasswordUpdatedEmail(email, name string) string {
	return mainHTML(fmt.Sprintf(`<body>
    <div class="container">
        <a href="#"><img class="logo" src="%s" alt="Siddhi Logo"></a>
        <div class="message">Password Update Confirmation</div>
        <div class="body">
            <p>Hey %s,</p>
            <p>Your password has been successfully updated for the email <span class="highlight">%s</span>.</p>
            <p>If you did not request this password change, please contact us immediately to secure your account.</p>
        </div>
        %s
    </div>
</body>`, logoURL, name, email, supportFooter()))
}
