package capability

import "time"

// productionPlanTimeout bounds the production-plan model call.
const productionPlanTimeout = 60 * time.Second

const profileBlock = `{{with .Profile}}About the writer: {{.Name}}{{if .Role}}, {{.Role}}{{end}}{{if .Industry}} in {{.Industry}}{{end}}.{{if .Goals}} Goals: {{.Goals}}.{{end}}{{if .WritingStyle}} Preferred style: {{.WritingStyle}}.{{end}}
{{end}}`

// instructionTemplate is appended to every capability template so they can
// render the caller's free-text instruction with {{template "instruction" .}}.
const instructionTemplate = `{{define "instruction"}}{{if .Instruction}}
Additional instruction: {{.Instruction}}
{{end}}{{end}}`

const creatorSystem = "You are a creative assistant for independent content creators. Be concrete and practical."

// Builtin returns the descriptors for every capability the API serves.
func Builtin() []Descriptor {
	return []Descriptor{
		scriptDescriptor(),
		storyboardDescriptor(),
		marketingAngleDescriptor(),
		abVariantDescriptor(),
		courseOutlineDescriptor(),
		quizDescriptor(),
		tutorChatDescriptor(),
		productionPlanDescriptor(),
		articleOutlineDescriptor(),
		articleExpandDescriptor(),
		articlePolishDescriptor(),
		ghostwriterDeconstructDescriptor(),
		ghostwriterGenerateDescriptor(),
		translateDescriptor(),
		imageAnalysisDescriptor(),
		brollSuggestDescriptor(),
		repurposeDescriptor(),
	}
}

func scriptDescriptor() Descriptor {
	return Descriptor{
		Name:     "script",
		System:   creatorSystem,
		Required: []string{"nodes"},
		Options: []Option{
			{Name: "platform", Allowed: []string{"tiktok", "youtube-shorts", "instagram-reels", "youtube"}, Default: "tiktok"},
			{Name: "duration", Allowed: []string{"15", "30", "60", "90"}, Default: "60"},
			{Name: "tone", Allowed: []string{"casual", "professional", "energetic", "educational"}, Default: "casual"},
		},
		Template: `Write a short-form video script for {{.Option "platform"}} lasting about {{.Option "duration"}} seconds in a {{.Option "tone"}} tone.

Source material:
{{.Context}}
{{template "instruction" .}}
Respond with JSON: {"hook": string, "body": [string], "scenes": [{"order": integer, "visual": string, "voiceover": string, "duration": integer seconds}], "estimatedDuration": integer seconds}`,
		Mode:           ModeJSON,
		OnParseFailure: UseFallback,
		Fallback: func(in *Input) map[string]any {
			d := intOption(in, "duration", 60)
			title := in.Title()
			return map[string]any{
				"hook": "Here's what you need to know about " + title,
				"body": []string{in.Context()},
				"scenes": []map[string]any{
					{"order": 1, "visual": title, "voiceover": "Here's what you need to know about " + title, "duration": d},
				},
				"estimatedDuration": d,
			}
		},
		Schema: `{
			"type": "object",
			"required": ["hook", "body", "scenes", "estimatedDuration"],
			"properties": {
				"hook": {"type": "string"},
				"body": {"type": "array", "items": {"type": "string"}},
				"scenes": {"type": "array", "items": {
					"type": "object",
					"required": ["order", "visual"],
					"properties": {
						"order": {"type": "integer"},
						"visual": {"type": "string"},
						"voiceover": {"type": "string"},
						"duration": {"type": "integer", "minimum": 0}
					}
				}},
				"estimatedDuration": {"type": "integer", "minimum": 0}
			}
		}`,
		NextAgent: "storyboard",
		Envelope:  Flat,
	}
}

func storyboardDescriptor() Descriptor {
	return Descriptor{
		Name:     "storyboard",
		System:   creatorSystem,
		Required: []string{"nodes"},
		Options: []Option{
			{Name: "style", Allowed: []string{"cinematic", "minimal", "animated", "documentary"}, Default: "cinematic"},
		},
		Template: `Create a storyboard in a {{.Option "style"}} visual style.

Source material:
{{.Context}}
{{template "instruction" .}}
Respond with JSON: {"frames": [{"order": integer, "description": string, "camera": string, "duration": integer seconds}], "style": string}`,
		Mode:           ModeJSON,
		OnParseFailure: UseFallback,
		Fallback: func(in *Input) map[string]any {
			frames := make([]map[string]any, 0, len(in.Nodes))
			for i, n := range in.Nodes {
				desc := n.Label
				if desc == "" {
					desc = n.Type
				}
				frames = append(frames, map[string]any{"order": i + 1, "description": desc, "camera": "static", "duration": 3})
			}
			return map[string]any{"frames": frames, "style": in.Option("style")}
		},
		Schema: `{
			"type": "object",
			"required": ["frames"],
			"properties": {
				"frames": {"type": "array", "items": {
					"type": "object",
					"required": ["order", "description"],
					"properties": {
						"order": {"type": "integer"},
						"description": {"type": "string"},
						"camera": {"type": "string"},
						"duration": {"type": "integer", "minimum": 0}
					}
				}},
				"style": {"type": "string"}
			}
		}`,
		Envelope: Flat,
	}
}

func marketingAngleDescriptor() Descriptor {
	return Descriptor{
		Name:     "marketing-angle",
		System:   creatorSystem,
		Required: []string{"nodes"},
		Options: []Option{
			{Name: "channel", Allowed: []string{"social", "email", "ads", "landing-page"}, Default: "social"},
		},
		Template: `Suggest three distinct marketing angles for the {{.Option "channel"}} channel.
{{with .String "audience"}}Target audience: {{.}}
{{end}}
Source material:
{{.Context}}
{{template "instruction" .}}
Respond with JSON: {"angles": [{"name": string, "hook": string, "audience": string, "confidence": integer 0-100}]}`,
		Mode:           ModeJSON,
		OnParseFailure: Propagate,
		Schema: `{
			"type": "object",
			"required": ["angles"],
			"properties": {
				"angles": {"type": "array", "minItems": 1, "items": {
					"type": "object",
					"required": ["name", "hook"],
					"properties": {
						"name": {"type": "string"},
						"hook": {"type": "string"},
						"audience": {"type": "string"},
						"confidence": {"type": "integer", "minimum": 0, "maximum": 100}
					}
				}}
			}
		}`,
		Envelope: Flat,
	}
}

func abVariantDescriptor() Descriptor {
	return Descriptor{
		Name:     "ab-variant",
		System:   creatorSystem,
		Required: []string{"nodes|content"},
		Options: []Option{
			{Name: "element", Allowed: []string{"headline", "cta", "hook", "caption"}, Default: "headline"},
		},
		Template: `Write two A/B test variants of the {{.Option "element"}} for this copy.

Copy:
{{.Context}}
{{template "instruction" .}}
Respond with JSON: {"variants": [{"label": "A" or "B", "text": string, "rationale": string, "confidence": integer 0-100}], "recommendation": string}`,
		Mode:           ModeJSON,
		OnParseFailure: UseFallback,
		Fallback: func(in *Input) map[string]any {
			title := in.Title()
			return map[string]any{
				"variants": []map[string]any{
					{"label": "A", "text": title, "rationale": "Original copy", "confidence": 50},
					{"label": "B", "text": "Discover " + title, "rationale": "Curiosity-led rewrite", "confidence": 50},
				},
				"recommendation": "Run both variants and compare results",
			}
		},
		Schema: `{
			"type": "object",
			"required": ["variants"],
			"properties": {
				"variants": {"type": "array", "minItems": 2, "items": {
					"type": "object",
					"required": ["label", "text"],
					"properties": {
						"label": {"type": "string"},
						"text": {"type": "string"},
						"rationale": {"type": "string"},
						"confidence": {"type": "integer", "minimum": 0, "maximum": 100}
					}
				}},
				"recommendation": {"type": "string"}
			}
		}`,
		ContentQuery:  ".variants",
		MetadataQuery: `{recommendation: (.recommendation // "")}`,
	}
}

func courseOutlineDescriptor() Descriptor {
	return Descriptor{
		Name:     "course-outline",
		System:   "You are an instructional designer who turns creator content into online courses.",
		Required: []string{"nodes|content"},
		Options: []Option{
			{Name: "level", Allowed: []string{"beginner", "intermediate", "advanced"}, Default: "beginner"},
		},
		Template: `Design a {{.Option "level"}} course outline from this material.

Material:
{{.Context}}
{{template "instruction" .}}
Respond with JSON: {"title": string, "description": string, "modules": [{"title": string, "lessons": [{"title": string, "durationMinutes": integer}]}]}`,
		Mode:           ModeJSON,
		OnParseFailure: Propagate,
		Schema: `{
			"type": "object",
			"required": ["title", "modules"],
			"properties": {
				"title": {"type": "string"},
				"description": {"type": "string"},
				"modules": {"type": "array", "minItems": 1, "items": {
					"type": "object",
					"required": ["title"],
					"properties": {
						"title": {"type": "string"},
						"lessons": {"type": "array", "items": {
							"type": "object",
							"required": ["title"],
							"properties": {
								"title": {"type": "string"},
								"durationMinutes": {"type": "integer", "minimum": 0}
							}
						}}
					}
				}}
			}
		}`,
		MetadataQuery:  `{moduleCount: (.modules | length)}`,
		NextAgent:      "quiz",
		SuggestedEdges: []SuggestedEdge{{Type: "course", Label: "course"}},
	}
}

func quizDescriptor() Descriptor {
	return Descriptor{
		Name:     "quiz",
		System:   "You are an educator who writes clear multiple-choice questions.",
		Required: []string{"nodes|content"},
		Options: []Option{
			{Name: "difficulty", Allowed: []string{"easy", "medium", "hard"}, Default: "medium"},
			{Name: "questionCount", Allowed: []string{"3", "5", "10"}, Default: "5"},
		},
		Template: `Write a {{.Option "difficulty"}} quiz with {{.Option "questionCount"}} multiple-choice questions about this material.

Material:
{{.Context}}
{{template "instruction" .}}
Respond with JSON: {"title": string, "difficulty": string, "questions": [{"question": string, "options": [string], "answer": integer index into options, "explanation": string}]}`,
		Mode:           ModeJSON,
		OnParseFailure: Propagate,
		Schema: `{
			"type": "object",
			"required": ["questions"],
			"properties": {
				"title": {"type": "string"},
				"difficulty": {"type": "string"},
				"questions": {"type": "array", "minItems": 1, "items": {
					"type": "object",
					"required": ["question", "options", "answer"],
					"properties": {
						"question": {"type": "string"},
						"options": {"type": "array", "minItems": 2, "items": {"type": "string"}},
						"answer": {"type": "integer", "minimum": 0},
						"explanation": {"type": "string"}
					}
				}}
			}
		}`,
		MetadataQuery:  `{questionCount: (.questions | length)}`,
		SuggestedEdges: []SuggestedEdge{{Type: "quiz", Label: "quiz"}},
	}
}

func tutorChatDescriptor() Descriptor {
	return Descriptor{
		Name:     "tutor-chat",
		System:   "You are a patient tutor. Answer using the course material and say so when it does not cover the question.",
		Required: []string{"nodes|content", "message"},
		Template: `Course material:
{{.Context}}
{{with .Fields.history}}
Conversation so far:
{{range .}}{{.role}}: {{.content}}
{{end}}{{end}}
Student: {{.String "message"}}
{{template "instruction" .}}`,
		Mode: ModeText,
	}
}

func productionPlanDescriptor() Descriptor {
	return Descriptor{
		Name:     "production-plan",
		System:   "You are a video producer who breaks creative briefs into shootable plans.",
		Required: []string{"nodes"},
		Template: `Break this brief into a production plan with tasks and a shot list.

Brief:
{{.Context}}
{{template "instruction" .}}
Respond with JSON: {"tasks": [{"title": string, "owner": string, "durationMinutes": integer}], "shotList": [{"shot": string, "location": string, "duration": integer seconds}], "totalDuration": integer seconds}`,
		Mode:           ModeJSON,
		OnParseFailure: Propagate,
		Schema: `{
			"type": "object",
			"required": ["tasks", "shotList", "totalDuration"],
			"properties": {
				"tasks": {"type": "array", "items": {
					"type": "object",
					"required": ["title"],
					"properties": {
						"title": {"type": "string"},
						"owner": {"type": "string"},
						"durationMinutes": {"type": "integer", "minimum": 0}
					}
				}},
				"shotList": {"type": "array", "items": {
					"type": "object",
					"required": ["shot"],
					"properties": {
						"shot": {"type": "string"},
						"location": {"type": "string"},
						"duration": {"type": "integer", "minimum": 0}
					}
				}},
				"totalDuration": {"type": "integer", "minimum": 0}
			}
		}`,
		MetadataQuery:  `{taskCount: (.tasks | length), shotCount: (.shotList | length)}`,
		SuggestedEdges: []SuggestedEdge{{Type: "production-plan", Label: "plan"}},
		Timeout:        productionPlanTimeout,
	}
}

func articleOutlineDescriptor() Descriptor {
	return Descriptor{
		Name:     "article-outline",
		System:   "You are an editor who plans well-structured articles.",
		Required: []string{"topic|nodes"},
		Options: []Option{
			{Name: "tone", Allowed: []string{"neutral", "friendly", "authoritative", "playful"}, Default: "neutral"},
			{Name: "length", Allowed: []string{"short", "medium", "long"}, Default: "medium"},
		},
		Template: profileBlock + `Outline a {{.Option "length"}} article in a {{.Option "tone"}} tone.
{{with .String "topic"}}Topic: {{.}}
{{end}}{{if .Nodes}}
Notes:
{{.Context}}
{{end}}{{with .Sources}}
Recent sources (cite by number where relevant):
{{.}}
{{end}}{{template "instruction" .}}
Respond with JSON: {"title": string, "sections": [{"heading": string, "points": [string]}]}`,
		Mode:           ModeJSON,
		OnParseFailure: UseFallback,
		Fallback: func(in *Input) map[string]any {
			return map[string]any{
				"title": in.Title(),
				"sections": []map[string]any{
					{"heading": "Introduction", "points": []string{}},
					{"heading": in.Title(), "points": []string{}},
					{"heading": "Conclusion", "points": []string{}},
				},
			}
		},
		Schema: `{
			"type": "object",
			"required": ["title", "sections"],
			"properties": {
				"title": {"type": "string"},
				"sections": {"type": "array", "minItems": 1, "items": {
					"type": "object",
					"required": ["heading"],
					"properties": {
						"heading": {"type": "string"},
						"points": {"type": "array", "items": {"type": "string"}}
					}
				}}
			}
		}`,
		ContentQuery:  ".sections",
		MetadataQuery: `{title}`,
		NextAgent:     "article-expand",
		Prepare:       withResearch,
	}
}

func articleExpandDescriptor() Descriptor {
	return Descriptor{
		Name:     "article-expand",
		System:   "You are a writer who turns outline sections into finished prose.",
		Required: []string{"section"},
		Options: []Option{
			{Name: "length", Allowed: []string{"short", "medium", "long"}, Default: "medium"},
		},
		Template: profileBlock + `{{with .String "title"}}Article: {{.}}
{{end}}Expand this section into {{.Option "length"}} prose. Return only the section text.

Section:
{{.String "section"}}
{{with .Fields.points}}Points to cover:
{{range .}}- {{.}}
{{end}}{{end}}{{template "instruction" .}}`,
		Mode:      ModeText,
		NextAgent: "article-polish",
		Prepare:   withProfile,
	}
}

func articlePolishDescriptor() Descriptor {
	return Descriptor{
		Name:     "article-polish",
		System:   "You are a careful copy editor. Keep the author's meaning and voice.",
		Required: []string{"content"},
		Options: []Option{
			{Name: "style", Allowed: []string{"concise", "friendly", "formal"}, Default: "concise"},
		},
		Template: `Polish this draft for a {{.Option "style"}} style. Fix grammar and flow. Return only the revised text.

Draft:
{{.String "content"}}
{{template "instruction" .}}`,
		Mode: ModeText,
	}
}

func ghostwriterDeconstructDescriptor() Descriptor {
	return Descriptor{
		Name:     "ghostwriter-deconstruct",
		System:   "You analyse writing samples to describe an author's voice.",
		Required: []string{"samples|nodes|content"},
		Template: `Describe the voice of the author of these samples.

{{range .Fields.samples}}---
{{.}}
{{end}}{{if .Nodes}}---
{{.Context}}
{{else}}{{with .String "content"}}---
{{.}}
{{end}}{{end}}
Respond with JSON: {"tone": string, "vocabulary": [string], "sentenceStructure": string, "signaturePhrases": [string], "summary": string}`,
		Mode:           ModeJSON,
		OnParseFailure: Propagate,
		Schema: `{
			"type": "object",
			"required": ["tone", "summary"],
			"properties": {
				"tone": {"type": "string"},
				"vocabulary": {"type": "array", "items": {"type": "string"}},
				"sentenceStructure": {"type": "string"},
				"signaturePhrases": {"type": "array", "items": {"type": "string"}},
				"summary": {"type": "string"}
			}
		}`,
		ContentQuery:  ".summary",
		MetadataQuery: `{voice: .}`,
		NextAgent:     "ghostwriter-generate",
	}
}

func ghostwriterGenerateDescriptor() Descriptor {
	return Descriptor{
		Name:     "ghostwriter-generate",
		System:   "You ghostwrite in the voice you are given. Never mention that you are imitating anyone.",
		Required: []string{"topic"},
		Options: []Option{
			{Name: "format", Allowed: []string{"post", "thread", "newsletter", "article"}, Default: "post"},
		},
		Template: profileBlock + `Write a {{.Option "format"}} about: {{.String "topic"}}
{{with .Fields.voice}}
Voice to match:
Tone: {{.tone}}
{{with .sentenceStructure}}Sentence structure: {{.}}
{{end}}{{with .signaturePhrases}}Signature phrases: {{range .}}"{{.}}" {{end}}
{{end}}{{with .summary}}Summary: {{.}}
{{end}}{{end}}{{if .Nodes}}
Reference material:
{{.Context}}
{{end}}{{template "instruction" .}}
Return only the finished text.`,
		Mode:    ModeText,
		Prepare: withProfile,
	}
}

func translateDescriptor() Descriptor {
	return Descriptor{
		Name:     "translate",
		System:   "You are a professional translator. Preserve formatting, names and tone.",
		Required: []string{"content|nodes", "targetLanguage"},
		Template: `Translate the following into {{.String "targetLanguage"}}. Return only the translation.

{{.Context}}
{{template "instruction" .}}`,
		Mode: ModeText,
		Echo: []string{"targetLanguage"},
	}
}

func imageAnalysisDescriptor() Descriptor {
	return Descriptor{
		Name:     "image-analysis",
		Required: []string{"imageUrl"},
		Template: `Describe this image for a content creator. Cover the subject, setting, mood and colours, then suggest how it could be used in a post.{{template "instruction" .}}`,
		Mode:     ModeVision,
	}
}

func brollSuggestDescriptor() Descriptor {
	return Descriptor{
		Name:     "broll-suggest",
		System:   creatorSystem,
		Required: []string{"nodes", "userId"},
		Template: `List short search keywords for B-roll footage that would fit this content. Use single lower-case words that could appear in a file name.

Content:
{{.Context}}
{{template "instruction" .}}
Respond with JSON: {"keywords": [string]}`,
		Mode:           ModeJSON,
		OnParseFailure: Propagate,
		Schema: `{
			"type": "object",
			"required": ["keywords"],
			"properties": {
				"keywords": {"type": "array", "minItems": 1, "items": {"type": "string"}}
			}
		}`,
		Finish:        rankUserAssets,
		ContentQuery:  ".suggestions",
		MetadataQuery: `{keywords}`,
	}
}

func repurposeDescriptor() Descriptor {
	return Descriptor{
		Name:     "repurpose",
		System:   creatorSystem,
		Required: []string{"content|nodes"},
		Options: []Option{
			{Name: "format", Allowed: []string{"tweet", "thread", "linkedin", "newsletter", "blog", "instagram"}, Default: "linkedin"},
		},
		Template: `Rewrite this {{with .String "sourceFormat"}}{{.}} {{end}}content as a {{.Option "format"}} post. Return only the rewritten text.

{{.Context}}
{{template "instruction" .}}`,
		Mode: ModeText,
		Echo: []string{"sourceFormat"},
	}
}
