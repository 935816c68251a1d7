// Command scorepost runs the scoring pipeline over a single post from the
// command line, printing the full breakdown. Useful for tuning weights and
// debugging classification without a running server.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/blackmichael/devlog-feed/internal/config"
	"github.com/blackmichael/devlog-feed/internal/scoring"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		keyword        float64
		hashtag        float64
		semantic       float64
		classification float64
		ageHours       float64
		velocity       float64
		flagged        bool
		images         int
		video          bool
		altText        bool
		externalURI    string
	)

	cmd := &cobra.Command{
		Use:   "scorepost [text]",
		Short: "Score a single post and print the ranking breakdown",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Default()
			if err != nil {
				return err
			}
			params := cfg.ScoringParams()

			now := time.Now().UTC()
			breakdown := params.ScoreOne(scoring.ScoreInput{
				Text:      args[0],
				Timestamp: now.Add(-time.Duration(ageHours * float64(time.Hour))),
				Scores: scoring.ComponentScores{
					Keyword:        keyword,
					Hashtag:        hashtag,
					Semantic:       semantic,
					Classification: classification,
				},
				Media: scoring.MediaInfo{
					ImageCount:  images,
					HasVideo:    video,
					HasAltText:  altText,
					ExternalURI: externalURI,
				},
				Velocity:      velocity,
				AuthorFlagged: flagged,
				PromoDomains:  cfg.Scoring.PromoDomains,
			}, now)

			printBreakdown(cmd, breakdown)
			return nil
		},
	}

	cmd.Flags().Float64Var(&keyword, "keyword", 0, "keyword signal score [0,1]")
	cmd.Flags().Float64Var(&hashtag, "hashtag", 0, "hashtag signal score [0,1]")
	cmd.Flags().Float64Var(&semantic, "semantic", 0, "semantic signal score [0,1]")
	cmd.Flags().Float64Var(&classification, "classification", 0, "classifier signal score [0,1]")
	cmd.Flags().Float64Var(&ageHours, "age-hours", 0, "post age in hours")
	cmd.Flags().Float64Var(&velocity, "velocity", 0, "engagement velocity score")
	cmd.Flags().BoolVar(&flagged, "flagged", false, "treat the author as a flagged spammer")
	cmd.Flags().IntVar(&images, "images", 0, "number of attached images")
	cmd.Flags().BoolVar(&video, "video", false, "post has a video embed")
	cmd.Flags().BoolVar(&altText, "alt-text", false, "attached images carry alt text")
	cmd.Flags().StringVar(&externalURI, "external-uri", "", "external embed link")

	return cmd
}

func printBreakdown(cmd *cobra.Command, b scoring.Breakdown) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "scores:      keyword=%.3f hashtag=%.3f semantic=%.3f classification=%.3f\n",
		b.Scores.Keyword, b.Scores.Hashtag, b.Scores.Semantic, b.Scores.Classification)
	fmt.Fprintf(out, "content:     first_person=%t media=%t links=%d promo_links=%d\n",
		b.Content.IsFirstPerson, b.Content.HasMedia, b.Content.LinkCount, b.Content.PromoLinkCount)
	fmt.Fprintf(out, "final_score: %.4f\n", b.FinalScore)
	fmt.Fprintf(out, "post_type:   %s\n", b.PostType)
	fmt.Fprintf(out, "confidence:  %s\n", b.Confidence)
	fmt.Fprintf(out, "decay:       %.4f\n", b.RecencyDecay)
	fmt.Fprintf(out, "velocity:    x%.4f\n", b.VelocityMultiplier)
	fmt.Fprintf(out, "priority:    %.4f\n", b.Priority)
}
