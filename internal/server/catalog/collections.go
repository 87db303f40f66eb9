package catalog

var levels = []string{"beginner", "intermediate", "advanced"}

func Courses() *Schema {
	return &Schema{
		Collection: "courses",
		Title:      "Courses",
		Chapters:   true,
		Fields: []Field{
			{Name: "title", Label: "Title", Kind: Text, Required: true},
			{Name: "description", Label: "Description", Kind: LongText, Required: true},
			{Name: "level", Label: "Level", Kind: Select, Required: true, Options: levels},
			{Name: "language", Label: "Language", Kind: Text, Required: true},
			{Name: "duration", Label: "Duration (minutes)", Kind: Number},
			{Name: "purchased", Label: "Purchased", Kind: Number},
			{Name: "teacher", Label: "Teacher", Kind: Text, Required: true},
			{Name: "teacherDescription", Label: "About the teacher", Kind: LongText},
			{Name: "price", Label: "Price", Kind: Number},
			{Name: "video", Label: "Main video", Kind: File, Folder: "videos", Accept: "video/"},
			{Name: "image", Label: "Image", Kind: File, Required: true, Folder: "images", Accept: "image/"},
		},
	}
}

func Products() *Schema {
	return &Schema{
		Collection:  "products",
		Title:       "Products",
		StampAuthor: true,
		Timestamped: true,
		Fields: []Field{
			{Name: "title", Label: "Title", Kind: Text, Required: true},
			{Name: "description", Label: "Description", Kind: LongText},
			{Name: "price", Label: "Price", Kind: Number},
			{Name: "stock", Label: "Stock", Kind: Number},
			{Name: "level", Label: "Level", Kind: Select, Options: levels},
			{Name: "language", Label: "Language", Kind: Text},
			{Name: "teacher", Label: "Teacher", Kind: Text},
			{Name: "teacherDescription", Label: "About the teacher", Kind: LongText},
			{Name: "document", Label: "Main document", Kind: File, Folder: "documents"},
			{Name: "image", Label: "Image", Kind: File, Folder: "images", Accept: "image/"},
		},
	}
}

func News() *Schema {
	return &Schema{
		Collection: "news",
		Title:      "News",
		Fields: []Field{
			{Name: "title", Label: "Title", Kind: Text, Required: true},
			{Name: "content", Label: "Content", Kind: LongText, Required: true},
			{Name: "author", Label: "Author", Kind: Text, Required: true},
			{Name: "date", Label: "Date", Kind: Date, Required: true},
			{Name: "image", Label: "Image", Kind: File, Folder: "news", Accept: "image/"},
		},
	}
}

// ChapterFolder is where course chapter videos are uploaded.
const ChapterFolder = "chapter-videos"
