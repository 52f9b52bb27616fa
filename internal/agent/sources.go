package agent

// Category classifies a monitored source.
type Category string

const (
	CategoryUniversity Category = "university"
	CategoryIndustry   Category = "industry"
	CategoryGovernment Category = "government"
	CategoryStartup    Category = "startup"
	CategoryGithub     Category = "github"
)

// Source is one entry in the monitored knowledge-base catalog.
type Source struct {
	Name        string
	Institution string
	URL         string
	Category    Category
	Focus       string
	Region      string
}

// GlobalSources is the built-in catalog the monitor stage sweeps. Standard
// depth samples one source per category; deep depth visits all of them.
var GlobalSources = []Source{
	{Name: "MIT CSAIL News", Institution: "MIT", URL: "https://www.csail.mit.edu/news", Category: CategoryUniversity, Focus: "artificial intelligence", Region: "US"},
	{Name: "Stanford HAI", Institution: "Stanford", URL: "https://hai.stanford.edu/news", Category: CategoryUniversity, Focus: "human-centered AI", Region: "US"},
	{Name: "Oxford Maths Institute", Institution: "University of Oxford", URL: "https://www.maths.ox.ac.uk/news", Category: CategoryUniversity, Focus: "mathematics research", Region: "UK"},
	{Name: "ETH AI Center", Institution: "ETH Zurich", URL: "https://ai.ethz.ch/news-and-events.html", Category: CategoryUniversity, Focus: "machine learning", Region: "EU"},
	{Name: "DeepMind Blog", Institution: "Google DeepMind", URL: "https://deepmind.google/discover/blog", Category: CategoryIndustry, Focus: "reinforcement learning", Region: "UK"},
	{Name: "OpenAI Research", Institution: "OpenAI", URL: "https://openai.com/research", Category: CategoryIndustry, Focus: "frontier models", Region: "US"},
	{Name: "Meta AI Blog", Institution: "Meta", URL: "https://ai.meta.com/blog", Category: CategoryIndustry, Focus: "open research", Region: "US"},
	{Name: "Microsoft Research Blog", Institution: "Microsoft", URL: "https://www.microsoft.com/en-us/research/blog", Category: CategoryIndustry, Focus: "applied research", Region: "US"},
	{Name: "NIST AI", Institution: "NIST", URL: "https://www.nist.gov/artificial-intelligence", Category: CategoryGovernment, Focus: "standards and measurement", Region: "US"},
	{Name: "NSF News", Institution: "NSF", URL: "https://www.nsf.gov/news", Category: CategoryGovernment, Focus: "funded research", Region: "US"},
	{Name: "UKRI News", Institution: "UKRI", URL: "https://www.ukri.org/news", Category: CategoryGovernment, Focus: "research councils", Region: "UK"},
	{Name: "Anthropic Research", Institution: "Anthropic", URL: "https://www.anthropic.com/research", Category: CategoryStartup, Focus: "interpretability and safety", Region: "US"},
	{Name: "Mistral Blog", Institution: "Mistral AI", URL: "https://mistral.ai/news", Category: CategoryStartup, Focus: "open-weight models", Region: "EU"},
	{Name: "Hugging Face Blog", Institution: "Hugging Face", URL: "https://huggingface.co/blog", Category: CategoryStartup, Focus: "open-source ML", Region: "US"},
	{Name: "Trending ML Repos", Institution: "GitHub", URL: "https://github.com/trending/python?since=weekly", Category: CategoryGithub, Focus: "machine learning", Region: "global"},
	{Name: "Trending Math Repos", Institution: "GitHub", URL: "https://github.com/trending/julia?since=weekly", Category: CategoryGithub, Focus: "scientific computing", Region: "global"},
}
