package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/MikeSquared-Agency/rehearse/internal/auth"
)

var (
	loginEmail    string
	loginPassword string

	registerUsername string
	registerEmail    string
	registerPassword string
	registerConfirm  string
	registerCode     string

	sendCodeEmail string

	logoutAll bool
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in and store the session",
	RunE:  runLogin,
}

var registerCmd = &cobra.Command{
	Use:   "register",
	Short: "Create an account with an emailed verification code",
	RunE:  runRegister,
}

var sendCodeCmd = &cobra.Command{
	Use:   "send-code",
	Short: "Email a registration verification code",
	RunE:  runSendCode,
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Drop the stored session",
	RunE:  runLogout,
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the signed-in user and when the session expires",
	RunE:  runWhoami,
}

func init() {
	loginCmd.Flags().StringVarP(&loginEmail, "email", "e", "", "Account email")
	loginCmd.Flags().StringVarP(&loginPassword, "password", "p", "", "Password (read from stdin when empty)")

	registerCmd.Flags().StringVarP(&registerUsername, "username", "u", "", "Display name")
	registerCmd.Flags().StringVarP(&registerEmail, "email", "e", "", "Account email")
	registerCmd.Flags().StringVarP(&registerPassword, "password", "p", "", "Password: 8+ letters and digits")
	registerCmd.Flags().StringVar(&registerConfirm, "confirm", "", "Password again")
	registerCmd.Flags().StringVarP(&registerCode, "code", "c", "", "Verification code from send-code")

	sendCodeCmd.Flags().StringVarP(&sendCodeEmail, "email", "e", "", "Email to send the code to")

	logoutCmd.Flags().BoolVar(&logoutAll, "all", false, "Also clear stored interview results")

	rootCmd.AddCommand(loginCmd, registerCmd, sendCodeCmd, logoutCmd, whoamiCmd)
}

func runLogin(cmd *cobra.Command, _ []string) error {
	password := loginPassword
	if password == "" {
		var err error
		if password, err = readLine(cmd.InOrStdin(), cmd.OutOrStdout(), "Password: "); err != nil {
			return err
		}
	}
	return withApp(cmd.Context(), func(a *app) error {
		res, err := a.auth.Login(cmd.Context(), auth.LoginForm{Email: loginEmail, Password: password})
		if err != nil {
			return err
		}
		if res.Message == "" {
			res.Message = "logged in"
		}
		fmt.Fprintln(cmd.OutOrStdout(), res.Message)
		fmt.Fprintf(cmd.OutOrStdout(), "next: %s\n", res.Navigation.Target)
		return nil
	})
}

func runRegister(cmd *cobra.Command, _ []string) error {
	return withApp(cmd.Context(), func(a *app) error {
		res, err := a.auth.Register(cmd.Context(), auth.RegisterForm{
			Username:         registerUsername,
			Email:            registerEmail,
			Password:         registerPassword,
			ConfirmPassword:  registerConfirm,
			VerificationCode: registerCode,
		})
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), res.Message)
		fmt.Fprintf(cmd.OutOrStdout(), "next: %s\n", res.Navigation.Target)
		return nil
	})
}

func runSendCode(cmd *cobra.Command, _ []string) error {
	return withApp(cmd.Context(), func(a *app) error {
		msg, cooldown, err := a.auth.SendCode(cmd.Context(), auth.SendCodeForm{Email: sendCodeEmail})
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), msg)
		fmt.Fprintf(cmd.OutOrStdout(), "you can request another code in %s\n", cooldown.Round(time.Second))
		return nil
	})
}

func runLogout(cmd *cobra.Command, _ []string) error {
	return withApp(cmd.Context(), func(a *app) error {
		if err := a.auth.Logout(cmd.Context(), logoutAll, a.session); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "logged out")
		return nil
	})
}

func runWhoami(cmd *cobra.Command, _ []string) error {
	return withApp(cmd.Context(), func(a *app) error {
		sess, err := a.auth.Current(cmd.Context())
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		user := "{}"
		if len(sess.User) > 0 && string(sess.User) != "null" {
			var pretty strings.Builder
			enc := json.NewEncoder(&pretty)
			enc.SetIndent("", "  ")
			var v any
			if json.Unmarshal(sess.User, &v) == nil && enc.Encode(v) == nil {
				user = strings.TrimSpace(pretty.String())
			}
		}
		fmt.Fprintf(out, "user: %s\n", user)
		fmt.Fprintf(out, "expires: %s (in %s)\n", sess.ExpiresAt.Format(time.RFC3339), time.Until(sess.ExpiresAt).Round(time.Second))
		return nil
	})
}

func readLine(in io.Reader, out io.Writer, prompt string) (string, error) {
	if out != nil && prompt != "" {
		fmt.Fprint(out, prompt)
	}
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("read input: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

