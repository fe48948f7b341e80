// ABOUTME: Matrix client construction and authentication
// ABOUTME: Uses an access token when configured, otherwise logs in with a password

package matrix

import (
	"context"
	"fmt"
	"log/slog"

	"maunium.net/go/mautrix"
	"maunium.net/go/mautrix/id"

	"github.com/2389/flowkeeper/internal/config"
)

// deviceDisplayName names the device created by a password login.
const deviceDisplayName = "flowkeeper"

// Connect creates an authenticated client. With an access token the user
// and device IDs are filled in from whoami when the config leaves them out.
func Connect(ctx context.Context, cfg config.MatrixConfig, logger *slog.Logger) (*mautrix.Client, error) {
	if logger == nil {
		logger = slog.Default()
	}

	client, err := mautrix.NewClient(cfg.Homeserver, id.UserID(cfg.UserID), cfg.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("creating matrix client: %w", err)
	}
	client.DeviceID = id.DeviceID(cfg.DeviceID)

	if cfg.AccessToken == "" {
		resp, err := client.Login(ctx, &mautrix.ReqLogin{
			Type: mautrix.AuthTypePassword,
			Identifier: mautrix.UserIdentifier{
				Type: mautrix.IdentifierTypeUser,
				User: cfg.Username,
			},
			Password:                 cfg.Password,
			DeviceID:                 id.DeviceID(cfg.DeviceID),
			InitialDeviceDisplayName: deviceDisplayName,
			StoreCredentials:         true,
		})
		if err != nil {
			return nil, fmt.Errorf("logging in as %s: %w", cfg.Username, err)
		}
		logger.Info("logged in to matrix", "user_id", resp.UserID.String(), "device_id", resp.DeviceID.String())
		return client, nil
	}

	if client.UserID == "" || client.DeviceID == "" {
		resp, err := client.Whoami(ctx)
		if err != nil {
			return nil, fmt.Errorf("resolving token owner: %w", err)
		}
		client.UserID = resp.UserID
		client.DeviceID = resp.DeviceID
	}
	logger.Info("using matrix access token", "user_id", client.UserID.String(), "device_id", client.DeviceID.String())
	return client, nil
}
