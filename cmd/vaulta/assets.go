package main

import (
	"strings"
	"time"

	"github.com/spf13/cobra"

	vaulta "github.com/vaulta/vaulta-go"
	"github.com/vaulta/vaulta-go/model"
	"github.com/vaulta/vaulta-go/sign"
)

func newAssetsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "assets",
		Short: "Upload, find and fetch assets.",
	}

	cmd.AddCommand(
		newAssetsUploadCmd(a),
		newAssetsSearchCmd(a),
		newAssetsDownloadCmd(a),
		newAssetsServeCmd(a),
		newAssetsDeleteCmd(a),
		newAssetsSignCmd(a),
		newAssetsInspectCmd(a),
	)

	return cmd
}

func newAssetsUploadCmd(a *app) *cobra.Command {
	var (
		name     string
		filename string
		labels   []string
	)

	cmd := &cobra.Command{
		Use:   "upload <path|->",
		Short: "Upload a file, or standard input when the path is -.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			parsed, err := parseLabels(labels)
			if err != nil {
				return err
			}

			src := vaulta.FromPath(args[0])
			if args[0] == "-" {
				src = vaulta.FromReader(cmd.InOrStdin(), filename)
			}

			vc, err := a.api()
			if err != nil {
				return err
			}

			up, err := vc.UploadAsset(cmd.Context(), src, vaulta.WithName(name), vaulta.WithLabels(parsed))
			if err != nil {
				return err
			}

			if up.HumanReadableSize == "" {
				up.HumanReadableSize = model.FormatSize(up.Size)
			}

			return a.print(cmd, up)
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "display name, defaults to the file name")
	cmd.Flags().StringVar(&filename, "filename", "", "file name sent for standard input")
	cmd.Flags().StringArrayVarP(&labels, "label", "l", nil, "label in key=value form, repeatable")

	return cmd
}

func newAssetsSearchCmd(a *app) *cobra.Command {
	var (
		labels []string
		search model.AssetSearch
	)

	cmd := &cobra.Command{
		Use:   "search",
		Short: "Find assets whose labels match every given label.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			parsed, err := parseLabels(labels)
			if err != nil {
				return err
			}
			search.Labels = parsed

			vc, err := a.api()
			if err != nil {
				return err
			}

			assets, err := vc.SearchAssets(cmd.Context(), search)
			if err != nil {
				return err
			}

			return a.print(cmd, withDisplaySize(assets))
		},
	}

	cmd.Flags().StringArrayVarP(&labels, "label", "l", nil, "label in key=value form, repeatable")
	cmd.Flags().IntVar(&search.Skip, "skip", 0, "number of matches to skip")
	cmd.Flags().IntVar(&search.Limit, "limit", model.DefaultLimit, "maximum number of matches to return")

	return cmd
}

// fetchCmd builds download and serve, which only differ in the call made.
func fetchCmd(a *app, use, short string, fetch func(vc *vaulta.Client, cmd *cobra.Command, arg string, opts ...vaulta.FetchOption) (vaulta.Fetched, error)) *cobra.Command {
	var (
		saveTo       string
		sha          string
		skipExisting bool
		showProgress bool
	)

	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			vc, err := a.api()
			if err != nil {
				return err
			}

			var opts []vaulta.FetchOption
			if saveTo != "" {
				opts = append(opts, vaulta.SaveTo(saveTo))
			}
			if sha != "" {
				opts = append(opts, vaulta.VerifySHA256(sha))
			}
			if skipExisting {
				opts = append(opts, vaulta.SkipExisting())
			}
			if showProgress {
				opts = append(opts, vaulta.ReportProgress())
			}

			got, err := fetch(vc, cmd, args[0], opts...)
			if err != nil {
				return err
			}

			if got.Path != "" {
				return a.print(cmd, map[string]string{"path": got.Path})
			}

			return a.raw(cmd, got.Data)
		},
	}

	cmd.Flags().StringVar(&saveTo, "save-to", "", "write the content to this path instead of standard output")
	cmd.Flags().StringVar(&sha, "sha256", "", "fail unless the content has this hex SHA-256 digest")
	cmd.Flags().BoolVar(&skipExisting, "skip-existing", false, "keep an existing --save-to file")
	cmd.Flags().BoolVar(&showProgress, "progress", false, "log --save-to progress")

	return cmd
}

func newAssetsDownloadCmd(a *app) *cobra.Command {
	return fetchCmd(a, "download <token>", "Fetch an asset by download token.",
		func(vc *vaulta.Client, cmd *cobra.Command, token string, opts ...vaulta.FetchOption) (vaulta.Fetched, error) {
			return vc.DownloadAsset(cmd.Context(), token, opts...)
		})
}

func newAssetsServeCmd(a *app) *cobra.Command {
	return fetchCmd(a, "serve <signed-url|payload>", "Fetch an asset through a signed serve link.",
		func(vc *vaulta.Client, cmd *cobra.Command, link string, opts ...vaulta.FetchOption) (vaulta.Fetched, error) {
			if i := strings.LastIndex(link, sign.ServePath); i >= 0 {
				link = link[i+len(sign.ServePath):]
			}
			return vc.ServeAsset(cmd.Context(), link, opts...)
		})
}

func newAssetsDeleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete an asset.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}

			vc, err := a.api()
			if err != nil {
				return err
			}

			ok, err := vc.DeleteAsset(cmd.Context(), id)
			if err != nil {
				return err
			}

			return a.print(cmd, map[string]bool{"deleted": ok})
		},
	}
}

func newAssetsSignCmd(a *app) *cobra.Command {
	var (
		clientID  string
		secret    string
		expiresIn time.Duration
	)

	cmd := &cobra.Command{
		Use:   "sign <asset-id>",
		Short: "Print a signed serve link. No request is made.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}

			vc, err := a.api()
			if err != nil {
				return err
			}

			link := vc.SignedServeURL(id.String(), clientID, secret, expiresIn)
			a.logger.Debug("serve link signed", "asset_id", id, "client_id", clientID, "expires_in", expiresIn)

			return a.print(cmd, map[string]string{"url": link})
		},
	}

	cmd.Flags().StringVar(&clientID, "client-id", "", "client id slug the link is issued to")
	cmd.Flags().StringVar(&secret, "secret", "", "secret of that client")
	cmd.Flags().DurationVar(&expiresIn, "expires-in", vaulta.DefaultServeExpiry, "link lifetime")
	_ = cmd.MarkFlagRequired("client-id")
	_ = cmd.MarkFlagRequired("secret")

	return cmd
}

// linkInfo is the decoded form of a signed serve link.
type linkInfo struct {
	AssetID   string    `json:"asset_id"`
	ClientID  string    `json:"client_id"`
	ExpiresAt time.Time `json:"expires_at"`
	Expired   bool      `json:"expired"`
}

func newAssetsInspectCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <signed-url|payload>",
		Short: "Decode a signed serve link without verifying it.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tok, err := sign.Parse(args[0])
			if err != nil {
				return err
			}

			return a.print(cmd, linkInfo{
				AssetID:   tok.AssetID,
				ClientID:  tok.ClientID,
				ExpiresAt: tok.ExpiresAt.UTC(),
				Expired:   tok.Expired(time.Now()),
			})
		},
	}
}
