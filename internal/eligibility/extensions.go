package eligibility

// defaultDenyExtensions are extensions with known-binary content.
var defaultDenyExtensions = []string{
	// images
	"png", "jpg", "jpeg", "gif", "bmp", "ico", "webp", "tiff", "psd", "svgz",
	// archives
	"zip", "tar", "gz", "tgz", "bz2", "xz", "7z", "rar", "lz4", "zst",
	// executables and objects
	"exe", "dll", "so", "dylib", "bin", "o", "a", "obj", "lib",
	"class", "jar", "war", "pyc", "pyo", "wasm",
	// fonts
	"woff", "woff2", "ttf", "eot", "otf",
	// media
	"mp3", "mp4", "avi", "mov", "mkv", "wav", "flac", "ogg", "webm",
	// documents and data blobs
	"pdf", "doc", "docx", "xls", "xlsx", "ppt", "pptx",
	"sqlite", "db", "mdb", "dat", "pack", "idx",
}

// defaultAllowExtensions are extensions with known-text content.
var defaultAllowExtensions = []string{
	// languages
	"go", "ts", "tsx", "js", "jsx", "mjs", "cjs", "py", "java", "c", "h",
	"cpp", "cc", "cxx", "hpp", "cs", "rb", "php", "rs", "kt", "kts",
	"swift", "scala", "dart", "lua", "r", "pl", "pm", "ex", "exs", "erl",
	"hs", "ml", "mli", "clj", "cljs", "groovy", "vb", "fs", "zig",
	// shell
	"sh", "bash", "zsh", "fish", "bat", "cmd", "ps1",
	// markup and docs
	"md", "markdown", "txt", "rst", "adoc", "tex", "html", "htm", "xhtml",
	"xml", "svg", "vue", "svelte",
	// styles
	"css", "scss", "sass", "less", "styl",
	// data and config
	"json", "jsonc", "yaml", "yml", "toml", "ini", "cfg", "conf",
	"properties", "env", "editorconfig", "sql", "graphql", "gql",
	"proto", "tf", "tfvars", "hcl", "gradle", "cmake", "mk",
	// locks and manifests commonly reviewed as text
	"lock", "mod", "sum", "csv", "tsv",
}
