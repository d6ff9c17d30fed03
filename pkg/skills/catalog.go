package skills

import (
	"github.com/mark3labs/mcp-go/mcp"
)

// CatalogLoader supplies tool descriptors to the registry. The base
// catalog below is always present; plugin loaders contribute additional
// descriptors at initialization time.
type CatalogLoader interface {
	LoadTools() []mcp.Tool
}

// StaticCatalog is a CatalogLoader over a fixed descriptor list.
type StaticCatalog []mcp.Tool

func (c StaticCatalog) LoadTools() []mcp.Tool { return c }

// LoaderFunc adapts a function to CatalogLoader.
type LoaderFunc func() []mcp.Tool

func (f LoaderFunc) LoadTools() []mcp.Tool { return f() }

// BaseCatalog returns the built-in XActions tool descriptors. Tool names
// follow the x_<verb>_<object> convention the categorizer keys on.
func BaseCatalog() StaticCatalog {
	return StaticCatalog{
		mcp.NewTool("x_get_profile",
			mcp.WithDescription("Fetch a public profile: display name, bio, follower and following counts, tweet count."),
			mcp.WithString("username", mcp.Required(), mcp.Description("Handle without the @ prefix")),
		),
		mcp.NewTool("x_get_tweets",
			mcp.WithDescription("Fetch the most recent tweets of an account."),
			mcp.WithString("username", mcp.Required(), mcp.Description("Handle without the @ prefix")),
			mcp.WithNumber("count", mcp.Description("Number of tweets to return (default 20)")),
		),
		mcp.NewTool("x_get_followers",
			mcp.WithDescription("List followers of an account."),
			mcp.WithString("username", mcp.Required()),
			mcp.WithNumber("count", mcp.Description("Maximum entries to return")),
		),
		mcp.NewTool("x_get_following",
			mcp.WithDescription("List accounts an account follows."),
			mcp.WithString("username", mcp.Required()),
			mcp.WithNumber("count", mcp.Description("Maximum entries to return")),
		),
		mcp.NewTool("x_search_tweets",
			mcp.WithDescription("Search recent tweets by query. Works on twitter and bluesky."),
			mcp.WithString("query", mcp.Required()),
			mcp.WithNumber("count", mcp.Description("Maximum results (default 20)")),
		),
		mcp.NewTool("x_scrape_thread",
			mcp.WithDescription("Scrape a full thread starting from a tweet URL."),
			mcp.WithString("url", mcp.Required(), mcp.Description("URL of the first tweet in the thread")),
		),
		mcp.NewTool("x_get_trends",
			mcp.WithDescription("Fetch trending topics for a region."),
			mcp.WithString("region", mcp.Description("Region identifier (default worldwide)")),
		),
		mcp.NewTool("x_post_tweet",
			mcp.WithDescription("Post a tweet. Supports twitter, bluesky and mastodon targets."),
			mcp.WithString("text", mcp.Required(), mcp.Description("Tweet body")),
			mcp.WithString("platform", mcp.Description("Target platform (default twitter)")),
		),
		mcp.NewTool("x_reply",
			mcp.WithDescription("Reply to a tweet."),
			mcp.WithString("url", mcp.Required(), mcp.Description("URL of the tweet to reply to")),
			mcp.WithString("text", mcp.Required()),
		),
		mcp.NewTool("x_retweet",
			mcp.WithDescription("Retweet a tweet."),
			mcp.WithString("url", mcp.Required()),
		),
		mcp.NewTool("x_like_tweet",
			mcp.WithDescription("Like a tweet."),
			mcp.WithString("url", mcp.Required()),
		),
		mcp.NewTool("x_follow_user",
			mcp.WithDescription("Follow an account."),
			mcp.WithString("username", mcp.Required()),
		),
		mcp.NewTool("x_unfollow_user",
			mcp.WithDescription("Unfollow an account."),
			mcp.WithString("username", mcp.Required()),
		),
		mcp.NewTool("x_send_dm",
			mcp.WithDescription("Send a direct message to an account."),
			mcp.WithString("username", mcp.Required()),
			mcp.WithString("text", mcp.Required()),
		),
		mcp.NewTool("x_analyze_sentiment",
			mcp.WithDescription("Analyze the sentiment of recent tweets for an account or query."),
			mcp.WithString("target", mcp.Required(), mcp.Description("Handle or search query")),
		),
		mcp.NewTool("x_analyze_engagement",
			mcp.WithDescription("Compute engagement analytics (likes, retweets, replies per tweet) for an account."),
			mcp.WithString("username", mcp.Required()),
		),
		mcp.NewTool("x_compare_profiles",
			mcp.WithDescription("Compare two profiles: followers, activity and engagement side by side."),
			mcp.WithString("username_a", mcp.Required()),
			mcp.WithString("username_b", mcp.Required()),
		),
		mcp.NewTool("x_workflow_run",
			mcp.WithDescription("Run a named multi-step workflow definition."),
			mcp.WithString("name", mcp.Required(), mcp.Description("Workflow definition name")),
		),
	}
}
