package backend

import "context"

func (c *Client) Login(ctx context.Context, req LoginRequest) (*LoginResponse, error) {
	const op = "Client.Login"

	var out LoginResponse
	if err := c.postJSON(ctx, op, "/auth/login", req, schemaLogin, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Register(ctx context.Context, req RegisterRequest) (*RegisterResponse, error) {
	const op = "Client.Register"

	var out RegisterResponse
	if err := c.postJSON(ctx, op, "/auth/register", req, schemaMessage, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) SendVerificationCode(ctx context.Context, email string) (*VerificationResponse, error) {
	const op = "Client.SendVerificationCode"

	var out VerificationResponse
	err := c.postJSON(ctx, op, "/auth/send_verification_code", map[string]string{"email": email}, schemaMessage, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}
