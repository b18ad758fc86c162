package content

// DefaultUpdatedAt is the timestamp carried by the built-in document.
const DefaultUpdatedAt = "2026-02-15T00:00:00.000Z"

func entry(fields ...any) map[string]any {
	out := make(map[string]any, len(fields)/2)
	for i := 0; i+1 < len(fields); i += 2 {
		out[fields[i].(string)] = fields[i+1]
	}
	return out
}

func defaultSettings() map[string]any {
	return map[string]any{
		"sectionOrder":          []any{"latest", "art", "hardware", "literature", "music", "software", "textiles"},
		"latestSource":          "literature",
		"latestSectionTitle":    "Latest",
		"latestSectionTarget":   "",
		"showLatestSection":     true,
		"showArtSection":        true,
		"showHardwareSection":   true,
		"showLiteratureSection": true,
		"showMusicSection":      true,
		"showSoftwareSection":   true,
		"showTextilesSection":   true,
		"navOrder":              []any{"art", "literature", "music", "software", "hardware", "textiles"},
		"showArtNav":            true,
		"showLiteratureNav":     true,
		"showMusicNav":          true,
		"showSoftwareNav":       true,
		"showHardwareNav":       true,
		"showTextilesNav":       true,
	}
}

func defaultPosts() []any {
	return []any{
		entry("id", "default_1", "type", "essay",
			"title", "On the Nature of Creative Work",
			"date", "2026-01-20",
			"content", "A longer exploration of how creativity intersects with discipline, and why the most meaningful work often emerges from constraint rather than freedom.",
			"link", "#", "visibility", "visible"),
		entry("id", "default_2", "type", "meditation",
			"quote", "The impediment to action advances action. What stands in the way becomes the way.",
			"citation", "- Marcus Aurelius, Meditations",
			"visibility", "visible"),
		entry("id", "default_3", "type", "post",
			"title", "Your First Blog Post",
			"date", "2026-01-23",
			"content", "This is where your blog post excerpt will appear. Write about anything that interests you.",
			"link", "#", "visibility", "visible"),
		entry("id", "default_4", "type", "meditation",
			"quote", "Waste no more time arguing about what a good man should be. Be one.",
			"citation", "- Marcus Aurelius, Meditations",
			"visibility", "visible"),
		entry("id", "default_5", "type", "essay",
			"title", "The Quiet Architecture of Habit",
			"date", "2026-01-15",
			"content", "How small, repeated actions compound into the invisible structure of our lives, and why understanding this changes everything about how we approach change.",
			"link", "#", "visibility", "visible"),
	}
}

func defaultApps() []any {
	return []any{
		entry("id", "app_1", "name", "Tiempo",
			"subtitle", "AI-Daily Planner for iOS and macOS",
			"description", "Tiempo reimagines how you interact with your calendar.",
			"icon", "icon-tiempo.png",
			"link", "/software.html#tiempo",
			"status", "available"),
		entry("id", "app_2", "name", "Synesthesia",
			"subtitle", "VisionOS app for experiencing music visually",
			"icon", "icon-synesthesia.png",
			"status", "coming_soon"),
		entry("id", "app_3", "name", "Arrow",
			"subtitle", "VisionOS app for Spatial Messaging",
			"icon", "icon-arrow.png",
			"status", "coming_soon"),
	}
}

func defaultVideos() []any {
	out := make([]any, 0, 5)
	for _, n := range []string{"1", "2", "3", "4", "5"} {
		out = append(out, entry("id", "vid_"+n, "title", "Video "+n, "url", "", "thumbnail", "", "visibility", "visible"))
	}
	return out
}

func defaultPhotos() []any {
	out := make([]any, 0, 6)
	for _, n := range []string{"1", "2", "3", "4", "5", "6"} {
		out = append(out, entry("id", "photo_"+n, "title", "Photo "+n, "url", "", "visibility", "visible"))
	}
	return out
}

func defaultTracks() []any {
	return []any{
		entry("id", "track_1", "title", "Paradox", "file", "Paradox.mp3", "visibility", "visible"),
	}
}

// Default returns a fresh copy of the built-in document served when neither
// the remote store nor any local copy is available.
func Default() Document {
	return Document{
		Version:   CurrentVersion,
		UpdatedAt: DefaultUpdatedAt,
		Settings:  defaultSettings(),
		Posts:     defaultPosts(),
		Apps:      defaultApps(),
		Videos:    defaultVideos(),
		Photos:    defaultPhotos(),
		Tracks:    defaultTracks(),
		Hardware:  []any{},
		Textiles:  []any{},
	}
}

// DefaultSettings returns a fresh copy of the built-in settings object.
func DefaultSettings() map[string]any {
	return defaultSettings()
}

// DefaultCollection returns a fresh copy of the named built-in collection.
func DefaultCollection(name string) []any {
	d := Default()
	return d.Collection(name)
}
