package cli

var completionScripts = map[string]string{
	"bash": bashCompletionScript,
	"zsh":  zshCompletionScript,
	"fish": fishCompletionScript,
}

// The daemon answers "zowex __complete <words...> <current>" with one
// candidate per line (tab-separated description), a ":<directive>" line, and
// a trailing "Completion ended" note. The scripts keep only the candidates.

const bashCompletionScript = `# bash completion for zowex
_zowex_candidates() {
  zowex __complete "$@" 2>/dev/null | grep -v '^:' | grep -v '^Completion ended' | cut -f1
}

_zowex_completion() {
  local cur words
  COMPREPLY=()
  cur="${COMP_WORDS[COMP_CWORD]}"

  if [[ "${COMP_WORDS[1]}" == "completion" && ${COMP_CWORD} -eq 2 ]]; then
    COMPREPLY=( $(compgen -W "bash zsh fish" -- "$cur") )
    return 0
  fi

  if [[ "${COMP_WORDS[1]}" == "daemon" && ${COMP_CWORD} -eq 2 ]]; then
    COMPREPLY=( $(compgen -W "start stop restart status config" -- "$cur") )
    return 0
  fi

  words="$(_zowex_candidates "${COMP_WORDS[@]:1:COMP_CWORD-1}" "$cur")"
  if [[ ${COMP_CWORD} -eq 1 ]]; then
    words="$words"$'\n'"@LOCAL@"
  fi
  COMPREPLY=( $(compgen -W "$words" -- "$cur") )
}
complete -F _zowex_completion zowex
`

const zshCompletionScript = `#compdef zowex
_zowex_completion() {
  local -a candidates

  if [[ "${words[2]}" == "completion" ]] && (( CURRENT == 3 )); then
    _values 'shell' bash zsh fish
    return
  fi

  if [[ "${words[2]}" == "daemon" ]] && (( CURRENT == 3 )); then
    _values 'daemon command' start stop restart status config
    return
  fi

  candidates=(${(f)"$(zowex __complete ${words[2,CURRENT-1]} "${words[CURRENT]}" 2>/dev/null | grep -v '^:' | grep -v '^Completion ended' | cut -f1)"})
  if (( CURRENT == 2 )); then
    candidates+=(@LOCAL@)
  fi
  _describe 'zowex' candidates
}
compdef _zowex_completion zowex
`

const fishCompletionScript = `function __zowex_candidates
    set -l w (commandline -opc)
    zowex __complete $w[2..-1] (commandline -ct) 2>/dev/null | string match -v -r '^:' | string match -v -r '^Completion ended' | string split -f1 \t
end

complete -c zowex -f
complete -c zowex -n 'test (count (commandline -opc)) -eq 1' -a "@LOCAL@"
complete -c zowex -n 'set -l w (commandline -opc); test (count $w) -eq 2; and test "$w[2]" = completion' -a "bash zsh fish"
complete -c zowex -n 'set -l w (commandline -opc); test (count $w) -eq 2; and test "$w[2]" = daemon' -a "start stop restart status config"
complete -c zowex -n 'set -l w (commandline -opc); test "$w[2]" != completion' -a "(__zowex_candidates)"
`
